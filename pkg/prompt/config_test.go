package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefault(t *testing.T) {
	c, err := NewDefault("MyApp")
	require.NoError(t, err)

	assert.Equal(t, "Login to MyApp", c.Title())
	assert.Equal(t, "Biometric Authentication", c.Subtitle())
	assert.NotEmpty(t, c.Description())
	assert.False(t, c.DeviceCredentialAllowed())

	label, ok := c.NegativeButton().Get()
	assert.True(t, ok)
	assert.Equal(t, "Cancel", label)
}

func TestNewFallback(t *testing.T) {
	c, err := NewFallback("MyApp")
	require.NoError(t, err)

	assert.Equal(t, "Login to MyApp", c.Title())
	assert.Equal(t, "Biometric Authentication + Pin Password", c.Subtitle())
	assert.Equal(t, "Use your fingerprint or pin to access the app", c.Description())
	assert.True(t, c.DeviceCredentialAllowed())
	assert.True(t, c.NegativeButton().IsAbsent())
}

func TestBuilders_MutuallyExclusive(t *testing.T) {
	for _, build := range []func(string) (Config, error){NewDefault, NewFallback} {
		for _, name := range []string{"MyApp", "a", "Android Tutorials Hub"} {
			c, err := build(name)
			require.NoError(t, err)

			// Exactly one of the two holds.
			assert.NotEqual(t, c.DeviceCredentialAllowed(), c.NegativeButton().IsPresent())
		}
	}
}

func TestBuilders_EmptyAppName(t *testing.T) {
	for _, name := range []string{"", "   ", "\t\n"} {
		_, err := NewDefault(name)
		assert.ErrorIs(t, err, ErrEmptyTitle)
		assert.ErrorIs(t, err, ErrInvalidConfig)

		_, err = NewFallback(name)
		assert.ErrorIs(t, err, ErrEmptyTitle)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New("Login", WithDeviceCredentialAllowed(), WithNegativeButton("Cancel"))
	assert.ErrorIs(t, err, ErrConflictingFallback)

	_, err = New("Login")
	assert.ErrorIs(t, err, ErrMissingNegativeButton)

	_, err = New("Login", WithNegativeButton(" "))
	assert.ErrorIs(t, err, ErrMissingNegativeButton)

	c, err := New("Login", WithNegativeButton("Use password"), WithSubtitle("sub"))
	require.NoError(t, err)
	assert.Equal(t, "sub", c.Subtitle())

	var errMsg *ErrorWithMessage
	_, err = New("")
	require.ErrorAs(t, err, &errMsg)
	assert.Equal(t, "title must not be blank", errMsg.Message)
}

func TestConfig_ZeroValueInvalid(t *testing.T) {
	assert.ErrorIs(t, Config{}.Validate(), ErrInvalidConfig)
}
