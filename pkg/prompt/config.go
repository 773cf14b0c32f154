package prompt

import (
	"strings"

	"github.com/samber/mo"
)

const (
	defaultSubtitle       = "Biometric Authentication"
	defaultDescription    = "Use your fingerprint to access the app"
	fallbackSubtitle      = "Biometric Authentication + Pin Password"
	fallbackDescription   = "Use your fingerprint or pin to access the app"
	defaultNegativeButton = "Cancel"
)

// Config describes a single challenge attempt. It is immutable once built;
// use New, NewDefault or NewFallback to obtain a valid one.
type Config struct {
	title                   string
	subtitle                string
	description             string
	deviceCredentialAllowed bool
	negativeButton          mo.Option[string]
}

type Option func(*Config)

func WithSubtitle(subtitle string) Option {
	return func(c *Config) {
		c.subtitle = subtitle
	}
}

func WithDescription(description string) Option {
	return func(c *Config) {
		c.description = description
	}
}

// WithNegativeButton sets the label of the explicit cancel affordance.
func WithNegativeButton(label string) Option {
	return func(c *Config) {
		c.negativeButton = mo.Some(label)
	}
}

// WithDeviceCredentialAllowed lets the platform accept the device PIN instead of the biometric.
func WithDeviceCredentialAllowed() Option {
	return func(c *Config) {
		c.deviceCredentialAllowed = true
	}
}

// New builds a Config and validates it.
func New(title string, opts ...Option) (Config, error) {
	c := Config{title: title}
	for _, opt := range opts {
		opt(&c)
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// NewDefault builds a biometric-only configuration with a cancel button.
func NewDefault(appName string) (Config, error) {
	return New(
		loginTitle(appName),
		WithSubtitle(defaultSubtitle),
		WithDescription(defaultDescription),
		WithNegativeButton(defaultNegativeButton),
	)
}

// NewFallback builds a configuration that accepts either the biometric or the device PIN.
func NewFallback(appName string) (Config, error) {
	return New(
		loginTitle(appName),
		WithSubtitle(fallbackSubtitle),
		WithDescription(fallbackDescription),
		WithDeviceCredentialAllowed(),
	)
}

func loginTitle(appName string) string {
	if strings.TrimSpace(appName) == "" {
		return ""
	}
	return "Login to " + appName
}

// Validate checks the invariants the host platform enforces on prompts:
// a non-blank title, and exactly one of fallback or negative button.
func (c Config) Validate() error {
	if strings.TrimSpace(c.title) == "" {
		return newErrorMessage(ErrEmptyTitle, "title must not be blank")
	}

	label, hasLabel := c.negativeButton.Get()
	switch {
	case c.deviceCredentialAllowed && hasLabel:
		return newErrorMessage(ErrConflictingFallback, "remove the negative button label \""+label+"\"")
	case !c.deviceCredentialAllowed && !hasLabel:
		return newErrorMessage(ErrMissingNegativeButton, "")
	case hasLabel && strings.TrimSpace(label) == "":
		return newErrorMessage(ErrMissingNegativeButton, "negative button label must not be blank")
	}

	return nil
}

func (c Config) Title() string {
	return c.title
}

func (c Config) Subtitle() string {
	return c.subtitle
}

func (c Config) Description() string {
	return c.description
}

func (c Config) DeviceCredentialAllowed() bool {
	return c.deviceCredentialAllowed
}

// NegativeButton is present iff the device credential fallback is not allowed.
func (c Config) NegativeButton() mo.Option[string] {
	return c.negativeButton
}
