package pinuv

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtocol_SharedSecretAgreement(t *testing.T) {
	for _, v := range []Version{One, Two} {
		platform, err := New(v)
		require.NoError(t, err)
		authenticator, err := New(v)
		require.NoError(t, err)

		platformKey, s1, err := platform.Encapsulate(authenticator.PublicKey())
		require.NoError(t, err)
		_, s2, err := authenticator.Encapsulate(platformKey)
		require.NoError(t, err)

		assert.Equal(t, s1, s2, "protocol %d", v)
		assert.Equal(t, platform.Version(), v)
	}
}

func TestProtocol_EncryptPINHash(t *testing.T) {
	pinHash := sha256.Sum256([]byte("12345678"))

	for _, v := range []Version{One, Two} {
		platform, err := New(v)
		require.NoError(t, err)
		authenticator, err := New(v)
		require.NoError(t, err)

		_, secret, err := platform.Encapsulate(authenticator.PublicKey())
		require.NoError(t, err)

		enc, err := platform.Encrypt(secret, pinHash[:16])
		require.NoError(t, err)

		dec, err := authenticator.Decrypt(secret, enc)
		require.NoError(t, err)
		assert.Equal(t, pinHash[:16], dec)

		_, err = platform.Encrypt(secret, []byte("not a block"))
		assert.ErrorIs(t, err, ErrInvalidLength)
	}
}

func TestProtocol_Authenticate(t *testing.T) {
	one, err := New(One)
	require.NoError(t, err)
	two, err := New(Two)
	require.NoError(t, err)

	token := make([]byte, 32)
	assert.Len(t, one.Authenticate(token, []byte("message")), 16)
	assert.Len(t, two.Authenticate(token, []byte("message")), 32)

	// Only the HMAC half of a protocol 2 shared secret is used.
	secret := make([]byte, 64)
	secret[40] = 0xff
	assert.Equal(t, two.Authenticate(token, []byte("m")), two.Authenticate(secret, []byte("m")))
}

func TestNew_Unsupported(t *testing.T) {
	_, err := New(Version(3))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestPreferred(t *testing.T) {
	v, err := Preferred([]Version{Two, One})
	require.NoError(t, err)
	assert.Equal(t, Two, v)

	v, err = Preferred([]Version{7, One})
	require.NoError(t, err)
	assert.Equal(t, One, v)

	_, err = Preferred(nil)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}
