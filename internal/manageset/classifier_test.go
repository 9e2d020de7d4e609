package manageset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hometree/hometree/internal/config"
	"github.com/hometree/hometree/internal/pathutil"
)

func mustClassifier(t *testing.T, cfg config.V) *Classifier {
	t.Helper()
	v, err := FromConfig(cfg)
	require.NoError(t, err)
	return New(v)
}

func TestClassifyOrderSecretsBeforeIgnore(t *testing.T) {
	cfg := config.Default()
	cfg.Secrets.Enabled = true
	cfg.Secrets.Rules = []config.SecretRule{{PlaintextPath: ".config/app/secret.txt"}}
	require.NoError(t, config.Validate(&cfg))
	c := mustClassifier(t, cfg)

	res := c.Classify(pathutil.MustNew(".config/app/secret.txt"), false)
	assert.Equal(t, SecretPlaintext, res.Class)

	res = c.Classify(pathutil.MustNew(".config/app/secret.txt.age"), false)
	assert.Equal(t, SecretCiphertext, res.Class)
}

func TestClassifyInRoot(t *testing.T) {
	cfg := config.Default()
	cfg.Manage.Roots = []string{".config/"}
	c := mustClassifier(t, cfg)

	res := c.Classify(pathutil.MustNew(".config/a/b.toml"), false)
	assert.Equal(t, InRoot, res.Class)
}

func TestClassifyExtraFile(t *testing.T) {
	cfg := config.Default()
	cfg.Manage.ExtraFiles = []string{".bashrc"}
	c := mustClassifier(t, cfg)

	res := c.Classify(pathutil.MustNew(".bashrc"), false)
	assert.Equal(t, ExtraFile, res.Class)
}

func TestClassifyOutsideDisallowedByDefault(t *testing.T) {
	cfg := config.Default()
	c := mustClassifier(t, cfg)

	res := c.Classify(pathutil.MustNew("random/file"), false)
	assert.Equal(t, OutsideAndDisallowed, res.Class)
}

func TestClassifyOutsideAllowedViaFlag(t *testing.T) {
	cfg := config.Default()
	c := mustClassifier(t, cfg)

	res := c.Classify(pathutil.MustNew("random/file"), true)
	assert.Equal(t, OutsideAllowed, res.Class)
}

func TestClassifyIgnoredTakesPrecedenceOverInRoot(t *testing.T) {
	cfg := config.Default()
	cfg.Manage.Roots = []string{".config/"}
	cfg.Ignore.Patterns = []string{".config/cache/**"}
	c := mustClassifier(t, cfg)

	res := c.Classify(pathutil.MustNew(".config/cache/a"), false)
	assert.Equal(t, Ignored, res.Class)
}

func TestMonotonicity(t *testing.T) {
	// Managed-set monotonicity: adding only ignores/secrets to a
	// config never turns an unmanaged path into a managed one.
	base := config.Default()
	base.Manage.Roots = []string{".config/"}
	c1 := mustClassifier(t, base)

	extended := base
	extended.Ignore.Patterns = append([]string(nil), base.Ignore.Patterns...)
	extended.Ignore.Patterns = append(extended.Ignore.Patterns, "random/**")
	c2 := mustClassifier(t, extended)

	p := pathutil.MustNew("random/file")
	require.False(t, c1.Classify(p, false).Class.Managed(), "test setup invalid: path should be unmanaged under base config")
	assert.False(t, c2.Classify(p, false).Class.Managed(), "adding an ignore must not make an unmanaged path managed")
}
