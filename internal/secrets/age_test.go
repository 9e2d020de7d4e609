package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	// For any rule with valid recipients and identities, encrypt then
	// decrypt returns the original plaintext.
	privHex, pubHex, err := GenerateIdentity()
	require.NoError(t, err)

	recipients, err := ParseRecipients([]string{pubHex})
	require.NoError(t, err)
	identities, err := ParseIdentities([][]byte{[]byte(privHex)})
	require.NoError(t, err)

	plaintext := []byte("super secret api token")
	envelope, err := Encrypt(plaintext, recipients)
	require.NoError(t, err)

	got, err := Decrypt(envelope, identities)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptMultipleRecipients(t *testing.T) {
	_, pub1, _ := GenerateIdentity()
	priv2, pub2, _ := GenerateIdentity()

	recipients, err := ParseRecipients([]string{pub1, pub2})
	require.NoError(t, err)
	envelope, err := Encrypt([]byte("shared secret"), recipients)
	require.NoError(t, err)

	identities, err := ParseIdentities([][]byte{[]byte(priv2)})
	require.NoError(t, err)
	got, err := Decrypt(envelope, identities)
	require.NoError(t, err, "second recipient should be able to decrypt")
	assert.Equal(t, "shared secret", string(got))
}

func TestDecryptFailsWithWrongIdentity(t *testing.T) {
	_, pub, _ := GenerateIdentity()
	wrongPriv, _, _ := GenerateIdentity()

	recipients, _ := ParseRecipients([]string{pub})
	envelope, err := Encrypt([]byte("data"), recipients)
	require.NoError(t, err)

	identities, err := ParseIdentities([][]byte{[]byte(wrongPriv)})
	require.NoError(t, err)
	_, err = Decrypt(envelope, identities)
	assert.Error(t, err, "expected decrypt to fail with the wrong identity")
}

func TestEncryptRequiresRecipients(t *testing.T) {
	_, err := Encrypt([]byte("x"), nil)
	assert.Error(t, err)
}
