package options

import (
	"context"
	"log/slog"

	"github.com/fxamacker/cbor/v2"
)

// DefaultRelyingParty is used when scoping pinUvAuthTokens if no relying party was set.
const DefaultRelyingParty = "uvprompt.local"

// PINEntry asks the user for the device PIN. retries is the number of PIN attempts the
// authenticator still allows. Returning an error aborts the fallback path.
type PINEntry func(ctx context.Context, retries uint) (string, error)

type Options struct {
	Logger         *slog.Logger
	EncMode        cbor.EncMode
	Context        context.Context
	Paths          []string
	UseNamedPipe   bool
	RelyingParty   string
	PINEntry       PINEntry
	MaxPINAttempts uint
}

type Option func(*Options)

func WithLogger(logger *slog.Logger) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

func WithEncMode(encMode cbor.EncMode) Option {
	return func(opts *Options) {
		opts.EncMode = encMode
	}
}

func WithContext(ctx context.Context) Option {
	return func(opts *Options) {
		opts.Context = ctx
	}
}

func WithPaths(paths ...string) Option {
	return func(opts *Options) {
		opts.Paths = paths
	}
}

func WithUseNamedPipes() Option {
	return func(opts *Options) {
		opts.UseNamedPipe = true
	}
}

// WithRelyingParty sets the RP ID the verification tokens are scoped to.
func WithRelyingParty(rpID string) Option {
	return func(opts *Options) {
		opts.RelyingParty = rpID
	}
}

// WithPINEntry enables the device credential fallback by supplying a way to ask for the PIN.
func WithPINEntry(entry PINEntry) Option {
	return func(opts *Options) {
		opts.PINEntry = entry
	}
}

// WithMaxPINAttempts bounds how many wrong PINs are accepted in one challenge before
// the platform gives up. Zero means the authenticator's own counter decides.
func WithMaxPINAttempts(n uint) Option {
	return func(opts *Options) {
		opts.MaxPINAttempts = n
	}
}

func NewOptions(opts ...Option) *Options {
	encMode, _ := cbor.CTAP2EncOptions().EncMode()
	oo := &Options{
		Logger:       slog.Default(),
		EncMode:      encMode,
		Context:      context.Background(),
		RelyingParty: DefaultRelyingParty,
	}

	for _, opt := range opts {
		opt(oo)
	}

	return oo
}
