// Package layout resolves the home root and the XDG-style config/state/
// runtime roots from environment and explicit override inputs. Every
// function here is pure with respect to its inputs — none
// consult the filesystem — so the CLI layer can pass in os.Getenv and flag
// values directly and keep this package trivially testable.
package layout

import (
	"os"
	"path/filepath"
)

// Roots is the resolved set of directories every other component builds
// its paths from.
type Roots struct {
	HomeRoot   string
	ConfigRoot string
	StateDir   string
	RuntimeDir string
}

// Overrides carries the CLI's --home-root/--xdg-root flags; either may be
// empty, in which case environment variables and XDG defaults apply.
type Overrides struct {
	HomeRoot string
	XDGRoot  string
}

// Env is the subset of environment lookups layout needs, satisfied by
// os.Getenv in production and a fake map in tests.
type Env func(key string) string

// Resolve computes Roots from overrides and env, in the precedence order
// the CLI surface promises: explicit flag, then environment variable, then
// platform default.
func Resolve(overrides Overrides, env Env) Roots {
	home := firstNonEmpty(overrides.HomeRoot, env("HOMETREE_HOME_ROOT"), env("HOME"))

	xdgRoot := firstNonEmpty(overrides.XDGRoot, env("HOMETREE_XDG_ROOT"))

	configRoot := firstNonEmpty(xdgRoot, env("XDG_CONFIG_HOME"), filepath.Join(home, ".config"))
	if xdgRoot != "" {
		configRoot = filepath.Join(xdgRoot, "config")
	}

	stateDir := firstNonEmpty(env("XDG_STATE_HOME"), filepath.Join(home, ".local", "state"))
	if xdgRoot != "" {
		stateDir = filepath.Join(xdgRoot, "state")
	}

	runtimeDir := firstNonEmpty(env("HOMETREE_RUNTIME_DIR"), env("XDG_RUNTIME_DIR"), filepath.Join(os.TempDir(), "hometree-run"))
	if xdgRoot != "" {
		runtimeDir = filepath.Join(xdgRoot, "runtime")
	}

	return Roots{
		HomeRoot:   filepath.Clean(home),
		ConfigRoot: filepath.Join(configRoot, "hometree"),
		StateDir:   filepath.Join(stateDir, "hometree"),
		RuntimeDir: filepath.Join(runtimeDir, "hometree"),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ConfigFile returns the configuration file path under r.ConfigRoot.
func (r Roots) ConfigFile() string { return filepath.Join(r.ConfigRoot, "config.yaml") }

// ExcludesFile returns the repository excludes-file path hometree owns.
func (r Roots) ExcludesFile() string { return filepath.Join(r.ConfigRoot, "gitignore") }

// GenerationsLog returns the append-only generations log path.
func (r Roots) GenerationsLog() string { return filepath.Join(r.StateDir, "generations.jsonl") }

// BackupRoot returns the parent directory under which timestamped backup
// sets are created.
func (r Roots) BackupRoot() string { return filepath.Join(r.StateDir, "backups") }

// LockFile returns the advisory lock file path for the repository.
func (r Roots) LockFile(gitDir string) string { return filepath.Join(gitDir, "hometree.lock") }

// IPCSocket returns the control-socket path under the runtime directory.
func (r Roots) IPCSocket() string { return filepath.Join(r.RuntimeDir, "ipc.sock") }

// DefaultGitDir returns the default bare-repository directory when the
// configuration does not set repo.git_dir explicitly.
func (r Roots) DefaultGitDir() string { return filepath.Join(r.StateDir, "repo.git") }
