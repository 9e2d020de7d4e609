package layout

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func fakeEnv(vals map[string]string) Env {
	return func(key string) string { return vals[key] }
}

func TestResolveDefaultsFromHome(t *testing.T) {
	r := Resolve(Overrides{}, fakeEnv(map[string]string{"HOME": "/home/alice"}))
	assert.Equal(t, "/home/alice", r.HomeRoot)
	assert.Equal(t, filepath.Join("/home/alice", ".config", "hometree"), r.ConfigRoot)
	assert.Equal(t, filepath.Join("/home/alice", ".local", "state", "hometree"), r.StateDir)
}

func TestResolveHomeRootOverrideWins(t *testing.T) {
	r := Resolve(Overrides{HomeRoot: "/override"}, fakeEnv(map[string]string{
		"HOME":                "/home/alice",
		"HOMETREE_HOME_ROOT": "/env-home",
	}))
	assert.Equal(t, "/override", r.HomeRoot, "flag override should win")
}

func TestResolveXDGRootOverridesAllRoots(t *testing.T) {
	r := Resolve(Overrides{XDGRoot: "/xdg"}, fakeEnv(map[string]string{"HOME": "/home/alice"}))
	assert.Equal(t, filepath.Join("/xdg", "config", "hometree"), r.ConfigRoot)
	assert.Equal(t, filepath.Join("/xdg", "state", "hometree"), r.StateDir)
	assert.Equal(t, filepath.Join("/xdg", "runtime", "hometree"), r.RuntimeDir)
}

func TestResolveXDGEnvVars(t *testing.T) {
	r := Resolve(Overrides{}, fakeEnv(map[string]string{
		"HOME":            "/home/alice",
		"XDG_CONFIG_HOME": "/custom/config",
		"XDG_STATE_HOME":  "/custom/state",
		"XDG_RUNTIME_DIR": "/custom/run",
	}))
	assert.Equal(t, filepath.Join("/custom/config", "hometree"), r.ConfigRoot)
	assert.Equal(t, filepath.Join("/custom/run", "hometree"), r.RuntimeDir)
}

func TestRootsHelperPaths(t *testing.T) {
	r := Resolve(Overrides{XDGRoot: "/xdg"}, fakeEnv(map[string]string{"HOME": "/home/alice"}))
	assert.Equal(t, filepath.Join(r.ConfigRoot, "config.yaml"), r.ConfigFile())
	assert.Equal(t, filepath.Join(r.RuntimeDir, "ipc.sock"), r.IPCSocket())
}
