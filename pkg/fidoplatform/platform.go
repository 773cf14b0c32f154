// Package fidoplatform runs biometric challenges on a CTAP2 authenticator with a
// built-in fingerprint sensor, falling back to the authenticator PIN when allowed.
package fidoplatform

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/go-ctap/uvprompt/pkg/capability"
	"github.com/go-ctap/uvprompt/pkg/ctap"
	"github.com/go-ctap/uvprompt/pkg/ctaphid"
	"github.com/go-ctap/uvprompt/pkg/device"
	"github.com/go-ctap/uvprompt/pkg/options"
	"github.com/go-ctap/uvprompt/pkg/outcome"
	"github.com/go-ctap/uvprompt/pkg/prompt"
	"github.com/go-ctap/uvprompt/pkg/sugar"
	"github.com/samber/lo"
)

// Token is the part of an authenticator a challenge needs. *device.Device implements it.
type Token interface {
	Info() *ctap.GetInfoResponse
	UVCapability() device.UVState
	UVRetries(ctx context.Context) (uint, error)
	PINRetries(ctx context.Context) (uint, bool, error)
	VerifyUser(ctx context.Context, permission ctap.Permission, rpID string) ([]byte, error)
	VerifyPIN(ctx context.Context, pin string, permission ctap.Permission, rpID string) ([]byte, error)
	Close() error
}

// Opener connects to the authenticator a challenge runs on. It may ask the user to
// pick one by touch. It returns sugar.ErrNoDevices when none is connected.
type Opener func(ctx context.Context) (Token, error)

// Lister connects to every authenticator without user interaction. It returns
// sugar.ErrNoDevices when none is connected.
type Lister func(ctx context.Context) ([]Token, error)

// SelectDevice opens authenticators with sugar.SelectDevice.
func SelectDevice(opts ...options.Option) Opener {
	return func(ctx context.Context) (Token, error) {
		dev, err := sugar.SelectDevice(slices.Concat(opts, []options.Option{options.WithContext(ctx)})...)
		if err != nil {
			return nil, err
		}
		return dev, nil
	}
}

// OpenDevices opens every connected authenticator with sugar.OpenDevices.
func OpenDevices(opts ...options.Option) Lister {
	return func(ctx context.Context) ([]Token, error) {
		devs, err := sugar.OpenDevices(slices.Concat(opts, []options.Option{options.WithContext(ctx)})...)
		if err != nil {
			return nil, err
		}
		return lo.Map(devs, func(d *device.Device, _ int) Token { return d }), nil
	}
}

// Platform implements capability.Source and challenge.Authenticator on top of an authenticator.
// Authenticators are opened for each probe and each challenge and closed afterwards.
type Platform struct {
	open           Opener
	list           Lister
	logger         *slog.Logger
	rpID           string
	pinEntry       options.PINEntry
	maxPINAttempts uint
}

// New creates a platform that probes and challenges the authenticator returned by open.
func New(open Opener, opts ...options.Option) *Platform {
	var list Lister
	if open != nil {
		list = func(ctx context.Context) ([]Token, error) {
			tok, err := open(ctx)
			if err != nil {
				return nil, err
			}
			return []Token{tok}, nil
		}
	}

	return NewWithLister(open, list, opts...)
}

// NewWithLister creates a platform that probes every authenticator returned by list
// and runs challenges on the one returned by open.
func NewWithLister(open Opener, list Lister, opts ...options.Option) *Platform {
	oo := options.NewOptions(opts...)

	return &Platform{
		open:           open,
		list:           list,
		logger:         oo.Logger,
		rpID:           oo.RelyingParty,
		pinEntry:       oo.PINEntry,
		maxPINAttempts: oo.MaxPINAttempts,
	}
}

// NewHID creates a platform over the HID authenticators connected to this machine.
func NewHID(opts ...options.Option) *Platform {
	return NewWithLister(SelectDevice(opts...), OpenDevices(opts...), opts...)
}

// readinessRank orders readiness results from most to least usable when several
// authenticators are connected.
var readinessRank = []capability.Readiness{
	capability.ReadinessSuccess,
	capability.ReadinessNoneEnrolled,
	capability.ReadinessSecurityUpdateRequired,
	capability.ReadinessHardwareUnavailable,
	capability.ReadinessNoHardware,
}

func rank(r capability.Readiness) int {
	if i := slices.Index(readinessRank, r); i >= 0 {
		return i
	}
	return len(readinessRank)
}

// Readiness reports whether a fingerprint challenge can run right now. It never waits
// for the user: every connected authenticator is inspected and the most usable wins.
func (p *Platform) Readiness(ctx context.Context) capability.Readiness {
	if p.list == nil {
		return capability.ReadinessUnsupported
	}

	toks, err := p.list(ctx)
	if err != nil {
		if errors.Is(err, sugar.ErrNoDevices) {
			p.logger.Debug("no authenticator connected")
			return capability.ReadinessNoHardware
		}
		p.logger.Debug("cannot open authenticator", "err", err)
		return capability.ReadinessHardwareUnavailable
	}
	if len(toks) == 0 {
		return capability.ReadinessNoHardware
	}

	best := capability.ReadinessStatusUnknown
	for _, tok := range toks {
		r := p.readiness(ctx, tok)
		_ = tok.Close()
		if rank(r) < rank(best) {
			best = r
		}
	}

	return best
}

func (p *Platform) readiness(ctx context.Context, tok Token) capability.Readiness {
	info := tok.Info()
	if info == nil {
		return capability.ReadinessStatusUnknown
	}
	if pinger, ok := tok.(interface{ Ping([]byte) error }); ok {
		if err := pinger.Ping([]byte("uvprompt")); err != nil {
			p.logger.Debug("authenticator does not answer", "err", err)
			return capability.ReadinessHardwareUnavailable
		}
	}
	if info.ForcePinChange {
		p.logger.Debug("authenticator requires a PIN change")
		return capability.ReadinessSecurityUpdateRequired
	}

	state := tok.UVCapability()
	if state == device.UVUnsupported || !info.Biometric() {
		p.logger.Debug("authenticator has no biometric verification", "uv", state.String())
		return capability.ReadinessNoHardware
	}
	if state == device.UVNotConfigured {
		return capability.ReadinessNoneEnrolled
	}

	retries, err := tok.UVRetries(ctx)
	if err != nil {
		p.logger.Debug("cannot read UV retries", "err", err)
		return capability.ReadinessHardwareUnavailable
	}
	if retries == 0 {
		// Only a correct PIN unblocks the sensor; the challenge reports the lockout or falls back.
		if pin, _ := info.Option(ctap.OptionClientPIN); pin {
			p.logger.Debug("built-in verification is blocked until the PIN is entered")
			return capability.ReadinessSuccess
		}
		p.logger.Debug("built-in verification is blocked")
		return capability.ReadinessHardwareUnavailable
	}

	return capability.ReadinessSuccess
}

// Authenticate opens the authenticator and starts the challenge. Outcomes are sent on
// the returned channel, which is closed after the terminal outcome or once ctx is done.
func (p *Platform) Authenticate(ctx context.Context, cfg prompt.Config) (<-chan outcome.Outcome, error) {
	if p.open == nil {
		return nil, ErrNoOpener
	}

	tok, err := p.open(ctx)
	if err != nil {
		return nil, err
	}

	if k, ok := tok.(interface{ OnKeepalive(ctaphid.KeepaliveFunc) }); ok {
		k.OnKeepalive(func(s ctaphid.KeepaliveStatus) {
			if s == ctaphid.STATUS_UPNEEDED {
				p.logger.Info("touch the fingerprint sensor", "title", cfg.Title())
			}
		})
	}

	out := make(chan outcome.Outcome)
	go func() {
		defer close(out)
		defer tok.Close()

		r := &run{
			Platform: p,
			ctx:      ctx,
			cfg:      cfg,
			tok:      tok,
			out:      out,
		}
		r.verifyUser()
	}()

	return out, nil
}

// run is one challenge in progress.
type run struct {
	*Platform
	ctx context.Context
	cfg prompt.Config
	tok Token
	out chan<- outcome.Outcome
}

func (r *run) send(o outcome.Outcome) bool {
	if r.ctx.Err() != nil {
		return false
	}

	select {
	case r.out <- o:
		return true
	case <-r.ctx.Done():
		return false
	}
}

// fail sends the terminal outcome for err, unless the challenge was canceled.
func (r *run) fail(err error) {
	if r.ctx.Err() != nil {
		return
	}

	o := Normalize(err)
	r.logger.Info("challenge failed", "code", o.Code.String(), "err", err)
	r.send(o)
}

func (r *run) verifyUser() {
	for {
		_, err := r.tok.VerifyUser(r.ctx, ctap.PermissionGetAssertion, r.rpID)
		if err == nil {
			r.send(outcome.Succeeded{})
			return
		}

		status, _ := ctaphid.StatusOf(err)
		switch {
		case status == ctaphid.CTAP2_ERR_UV_INVALID:
			r.logger.Debug("fingerprint not recognized")
			if !r.send(outcome.Failed{}) {
				return
			}
		case status == ctaphid.CTAP2_ERR_UV_BLOCKED && r.cfg.DeviceCredentialAllowed():
			r.logger.Info("built-in verification blocked, falling back to PIN")
			r.verifyPIN()
			return
		default:
			r.fail(err)
			return
		}
	}
}

func (r *run) verifyPIN() {
	if r.pinEntry == nil {
		r.fail(ErrNoPINEntry)
		return
	}

	var attempts uint
	for {
		retries, powerCycle, err := r.tok.PINRetries(r.ctx)
		if err != nil {
			r.fail(err)
			return
		}
		if retries == 0 {
			r.fail(&ctaphid.CTAPError{Command: byte(ctap.AuthenticatorClientPIN), StatusCode: ctaphid.CTAP2_ERR_PIN_BLOCKED})
			return
		}
		if powerCycle {
			// The authenticator rejects every PIN until it is unplugged.
			r.fail(&ctaphid.CTAPError{Command: byte(ctap.AuthenticatorClientPIN), StatusCode: ctaphid.CTAP2_ERR_PIN_AUTH_BLOCKED})
			return
		}

		pin, err := r.pinEntry(r.ctx, retries)
		if err != nil {
			if r.ctx.Err() == nil {
				r.send(outcome.Error{Code: outcome.CodeUserCanceled, Message: err.Error()})
			}
			return
		}

		_, err = r.tok.VerifyPIN(r.ctx, pin, ctap.PermissionGetAssertion, r.rpID)
		if err == nil {
			r.send(outcome.Succeeded{})
			return
		}

		if status, _ := ctaphid.StatusOf(err); status != ctaphid.CTAP2_ERR_PIN_INVALID {
			r.fail(err)
			return
		}

		attempts++
		if r.maxPINAttempts > 0 && attempts >= r.maxPINAttempts {
			r.send(outcome.Error{Code: outcome.CodeLockout, Message: "too many wrong PINs"})
			return
		}
		if !r.send(outcome.Failed{}) {
			return
		}
	}
}
