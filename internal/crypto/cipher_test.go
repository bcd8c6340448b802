package crypto

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, KeySize)
}

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher(testKey(7))
	require.NoError(t, err)

	sealed, err := c.Encrypt("s3cret-pop3")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "s3cret")

	again, err := c.Encrypt("s3cret-pop3")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per encryption")

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-pop3", plain)
}

func TestCipherEmptyPassthrough(t *testing.T) {
	c, err := NewCipher(testKey(1))
	require.NoError(t, err)

	out, err := c.Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = c.Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCipherDecryptFailures(t *testing.T) {
	c, err := NewCipher(testKey(1))
	require.NoError(t, err)
	other, err := NewCipher(testKey(2))
	require.NoError(t, err)

	sealed, err := other.Encrypt("password")
	require.NoError(t, err)

	_, err = c.Decrypt(sealed)
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = c.Decrypt("not base64!!")
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = c.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestNewCipherKeyValidation(t *testing.T) {
	_, err := NewCipher([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKey)

	c, err := NewCipherFromBase64(base64.StdEncoding.EncodeToString(testKey(9)))
	require.NoError(t, err)
	assert.NotNil(t, c)

	_, err = NewCipherFromBase64("%%%")
	assert.Error(t, err)
}
