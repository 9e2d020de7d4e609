package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsLowDebounce(t *testing.T) {
	v := Default()
	v.Watch.DebounceMs = 10
	require.Error(t, Validate(&v))
}

func TestValidateDefaultsDebounce(t *testing.T) {
	v := Default()
	v.Watch.DebounceMs = 0
	require.NoError(t, Validate(&v))
	assert.Equal(t, 300, v.Watch.DebounceMs)
}

func TestValidateRejectsBroadAllowPatterns(t *testing.T) {
	for _, bad := range []string{"*", "**", "**/*", "*/**", ".**", ".*/**", "/abs/path", "noSlash"} {
		v := Default()
		v.Watch.AutoAddAllowPatterns = []string{bad}
		assert.Error(t, Validate(&v), "pattern %q should be rejected", bad)
	}
}

func TestValidateAllowsDottedPatternWithoutSlash(t *testing.T) {
	v := Default()
	v.Watch.AutoAddAllowPatterns = []string{".bashrc"}
	require.NoError(t, Validate(&v))
}

func TestValidateCapsAllowPatternCount(t *testing.T) {
	v := Default()
	for i := 0; i < 51; i++ {
		v.Watch.AutoAddAllowPatterns = append(v.Watch.AutoAddAllowPatterns, ".config/x/")
	}
	require.Error(t, Validate(&v))
}

func TestValidateSecretsDefaultsSidecarSuffixAndAddsIgnore(t *testing.T) {
	v := Default()
	v.Secrets.Enabled = true
	v.Secrets.SidecarSuffix = ""
	v.Secrets.Rules = []SecretRule{{PlaintextPath: ".config/app/secret.txt"}}
	require.NoError(t, Validate(&v))
	assert.Equal(t, ".age", v.Secrets.SidecarSuffix)
	assert.Contains(t, v.Ignore.Patterns, ".config/app/secret.txt")
}

func TestValidateRejectsNonAgeBackend(t *testing.T) {
	v := Default()
	v.Secrets.Enabled = true
	v.Secrets.Backend = "gpg"
	require.Error(t, Validate(&v))
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode([]byte("bogus_top_level_field: true\n"))
	require.Error(t, err)
}
