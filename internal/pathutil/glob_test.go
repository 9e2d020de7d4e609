package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchIgnoreTerminalSegment(t *testing.T) {
	assert.True(t, MatchIgnore("*.log", MustNew("a/b/debug.log")))
	assert.False(t, MatchIgnore("*.log", MustNew("a/b.log/c")), "pattern without '/' must match only terminal segment")
}

func TestMatchIgnoreDoubleStar(t *testing.T) {
	assert.True(t, MatchIgnore(".config/**", MustNew(".config/a/b/c")))
	assert.True(t, MatchIgnore(".config/**", MustNew(".config")), "** should also match zero segments")
}

func TestMatchIgnoreTrailingSlashPrefix(t *testing.T) {
	assert.True(t, MatchIgnore("build/", MustNew("build/output/a.o")))
	assert.False(t, MatchIgnore("build/", MustNew("notbuild/x")), "must not match unrelated prefix")
}

func TestMatchIgnoreCaseSensitive(t *testing.T) {
	assert.False(t, MatchIgnore("*.LOG", MustNew("a.log")), "matching must be case-sensitive")
}

func TestRPRejectsDotDot(t *testing.T) {
	_, err := New("a/../b")
	require.Error(t, err)
}

func TestRPRejectsAbsolute(t *testing.T) {
	_, err := New("/etc/passwd")
	require.Error(t, err)
}

func TestUnderManagedRoot(t *testing.T) {
	root := MustNew(".config/")
	assert.True(t, Under(root, MustNew(".config/a/b.toml")))
	assert.False(t, Under(root, MustNew(".configother/a")), "must not treat sibling with shared prefix as under root")
}
