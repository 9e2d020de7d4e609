// Package config defines hometree's typed configuration schema and its
// validation invariants. Decoding the on-disk file
// is a thin adapter on top of this schema — parsing/serialization is an
// external concern; this package owns only the in-memory representation
// and its invariants.
package config

import (
	"fmt"
	"strings"
)

// BackupPolicy controls how the applier backs up secret plaintext.
type BackupPolicy string

const (
	BackupEncrypt   BackupPolicy = "encrypt"
	BackupSkip      BackupPolicy = "skip"
	BackupPlaintext BackupPolicy = "plaintext"
)

// SecretRule is one declared secret: a plaintext path with its ciphertext
// sidecar and file mode.
type SecretRule struct {
	PlaintextPath  string `yaml:"plaintext_path"`
	CiphertextPath string `yaml:"ciphertext_path,omitempty"`
	Mode           *uint32 `yaml:"mode,omitempty"`
}

// ResolvedCiphertextPath returns CiphertextPath, defaulting to
// PlaintextPath+suffix when unset.
func (r SecretRule) ResolvedCiphertextPath(suffix string) string {
	if r.CiphertextPath != "" {
		return r.CiphertextPath
	}
	return r.PlaintextPath + suffix
}

// ResolvedMode returns Mode, defaulting to 0600.
func (r SecretRule) ResolvedMode() uint32 {
	if r.Mode != nil {
		return *r.Mode
	}
	return 0600
}

type RepoConfig struct {
	GitDir   string `yaml:"git_dir"`
	WorkTree string `yaml:"work_tree"`
}

type ManageConfig struct {
	Roots        []string `yaml:"roots"`
	ExtraFiles   []string `yaml:"extra_files"`
	AllowOutside bool     `yaml:"allow_outside"`
}

type IgnoreConfig struct {
	Patterns []string `yaml:"patterns"`
}

type WatchConfig struct {
	Enabled              bool     `yaml:"enabled"`
	DebounceMs           int      `yaml:"debounce_ms"`
	AutoStageTrackedOnly bool     `yaml:"auto_stage_tracked_only"`
	AutoAddNew           bool     `yaml:"auto_add_new"`
	AutoAddAllowPatterns []string `yaml:"auto_add_allow_patterns"`
}

type SnapshotConfig struct {
	AutoMessageTemplate string `yaml:"auto_message_template,omitempty"`
}

type SecretsConfig struct {
	Enabled       bool         `yaml:"enabled"`
	Backend       string       `yaml:"backend"`
	SidecarSuffix string       `yaml:"sidecar_suffix"`
	Recipients    []string     `yaml:"recipients"`
	IdentityFiles []string     `yaml:"identity_files"`
	Rules         []SecretRule `yaml:"rules"`
	BackupPolicy  BackupPolicy `yaml:"backup_policy"`
}

// V is the root configuration object.
type V struct {
	Repo     RepoConfig     `yaml:"repo"`
	Manage   ManageConfig   `yaml:"manage"`
	Ignore   IgnoreConfig   `yaml:"ignore"`
	Watch    WatchConfig    `yaml:"watch"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Secrets  SecretsConfig  `yaml:"secrets"`
}

// disallowedAutoAddPatterns are exact matches rejected outright.
var disallowedAutoAddPatterns = map[string]bool{
	"*":      true,
	"**":     true,
	"**/*":   true,
	"*/**":   true,
	".**":    true,
	".*/**":  true,
}

// Default returns a V with baseline defaults filled in.
func Default() V {
	return V{
		Watch: WatchConfig{
			DebounceMs: 300,
		},
		Secrets: SecretsConfig{
			Backend:       "age",
			SidecarSuffix: ".age",
			BackupPolicy:  BackupEncrypt,
		},
	}
}

// Validate enforces configuration invariants. It mutates v in place to
// apply defaults (debounce of 300ms when unset, sidecar suffix, implicit
// ignores for secret plaintexts) at load time; a debounce below 50ms is
// rejected.
func Validate(v *V) error {
	if v.Watch.DebounceMs == 0 {
		v.Watch.DebounceMs = 300
	}
	if v.Watch.DebounceMs < 50 {
		return fmt.Errorf("watch.debounce_ms must be >= 50, got %d", v.Watch.DebounceMs)
	}

	if len(v.Watch.AutoAddAllowPatterns) > 50 {
		return fmt.Errorf("watch.auto_add_allow_patterns must have <= 50 entries, got %d", len(v.Watch.AutoAddAllowPatterns))
	}
	for _, p := range v.Watch.AutoAddAllowPatterns {
		if p == "" {
			return fmt.Errorf("watch.auto_add_allow_patterns: entries must be non-empty")
		}
		if disallowedAutoAddPatterns[p] {
			return fmt.Errorf("watch.auto_add_allow_patterns: pattern %q is too broad", p)
		}
		if strings.HasPrefix(p, "/") {
			return fmt.Errorf("watch.auto_add_allow_patterns: pattern %q must not be absolute", p)
		}
		if !strings.Contains(p, "/") && !strings.HasPrefix(p, ".") {
			return fmt.Errorf("watch.auto_add_allow_patterns: pattern %q must contain '/' unless it starts with '.'", p)
		}
	}

	if v.Secrets.Enabled {
		if v.Secrets.Backend == "" {
			v.Secrets.Backend = "age"
		}
		if v.Secrets.Backend != "age" {
			return fmt.Errorf("secrets.backend: only \"age\" is supported, got %q", v.Secrets.Backend)
		}
		if v.Secrets.SidecarSuffix == "" {
			v.Secrets.SidecarSuffix = ".age"
		}
		if v.Secrets.BackupPolicy == "" {
			v.Secrets.BackupPolicy = BackupEncrypt
		}
		switch v.Secrets.BackupPolicy {
		case BackupEncrypt, BackupSkip, BackupPlaintext:
		default:
			return fmt.Errorf("secrets.backup_policy: invalid value %q", v.Secrets.BackupPolicy)
		}
		for _, rule := range v.Secrets.Rules {
			pattern := rule.PlaintextPath
			if !containsString(v.Ignore.Patterns, pattern) {
				v.Ignore.Patterns = append(v.Ignore.Patterns, pattern)
			}
		}
	}

	return nil
}

// RequireAutoMessageTemplate is called by the snapshot --auto operation;
// it is not a load-time invariant because it only applies conditionally.
func RequireAutoMessageTemplate(v V) error {
	if strings.TrimSpace(v.Snapshot.AutoMessageTemplate) == "" {
		return fmt.Errorf("snapshot.auto_message_template is required for 'snapshot --auto'")
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
