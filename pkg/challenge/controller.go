package challenge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-ctap/uvprompt/pkg/capability"
	"github.com/go-ctap/uvprompt/pkg/options"
	"github.com/go-ctap/uvprompt/pkg/outcome"
	"github.com/go-ctap/uvprompt/pkg/prompt"
)

// Authenticator is the platform primitive that runs a challenge.
//
// Authenticate must return promptly. The returned channel carries any number
// of outcome.Failed followed by exactly one terminal outcome, after which it
// is closed. Implementations must stop sending and close the channel once ctx
// is done.
type Authenticator interface {
	Authenticate(ctx context.Context, cfg prompt.Config) (<-chan outcome.Outcome, error)
}

// AuthenticatorFunc adapts a plain function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, cfg prompt.Config) (<-chan outcome.Outcome, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, cfg prompt.Config) (<-chan outcome.Outcome, error) {
	return f(ctx, cfg)
}

// Controller issues challenges for one session. At most one challenge is
// awaiting its result at any time.
type Controller struct {
	prober *capability.Prober
	authn  Authenticator
	logger *slog.Logger

	mu     sync.Mutex
	active *Challenge
}

func New(prober *capability.Prober, authn Authenticator, opts ...options.Option) *Controller {
	oo := options.NewOptions(opts...)

	return &Controller{
		prober: prober,
		authn:  authn,
		logger: oo.Logger,
	}
}

// Issue validates cfg, probes the capability and, if usable, starts the challenge.
//
// Configuration errors and ErrChallengeOutstanding are returned as errors.
// When the probe is not Usable the returned Challenge is already resolved with
// an outcome.Error naming the status, and the platform is never asked.
func (c *Controller) Issue(ctx context.Context, cfg prompt.Config) (*Challenge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ch, err := c.reserve(cfg)
	if err != nil {
		return nil, err
	}
	ch.logger.Info("issuing challenge",
		"title", cfg.Title(),
		"deviceCredentialAllowed", cfg.DeviceCredentialAllowed(),
	)

	if status := c.prober.Probe(ctx); status != capability.Usable {
		ch.logger.Info("challenge refused", "status", status.String())
		ch.resolve(outcome.FromStatus(status))
		return ch, nil
	}

	if c.authn == nil {
		ch.resolve(outcome.Error{
			Code:    outcome.CodeUnableToProcess,
			Message: ErrNoAuthenticator.Error(),
		})
		return ch, nil
	}

	pctx, cancel := context.WithCancel(ctx)
	events, err := c.authn.Authenticate(pctx, cfg)
	if err != nil {
		cancel()
		ch.logger.Warn("cannot start challenge", "err", err)
		ch.resolve(outcome.Error{
			Code:    outcome.CodeUnableToProcess,
			Message: err.Error(),
		})
		return ch, nil
	}

	if !ch.start(cancel) {
		cancel()
		return ch, nil
	}

	go ch.pump(events)

	return ch, nil
}

// Authenticate issues a challenge and waits for its terminal outcome. onFailed
// is called for every rejected attempt. If ctx is done first the challenge is
// canceled and ctx.Err() is returned.
func (c *Controller) Authenticate(ctx context.Context, cfg prompt.Config, onFailed func()) (outcome.Outcome, error) {
	ch, err := c.Issue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	o, err := ch.Wait(ctx, onFailed)
	if err != nil {
		ch.Cancel()
		return nil, err
	}

	return o, nil
}

// Outstanding reports whether a challenge is awaiting its result.
func (c *Controller) Outstanding() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.active != nil
}

// Cancel cancels the outstanding challenge, if any.
func (c *Controller) Cancel() {
	c.mu.Lock()
	ch := c.active
	c.mu.Unlock()

	if ch != nil {
		ch.Cancel()
	}
}

func (c *Controller) reserve(cfg prompt.Config) (*Challenge, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return nil, newErrorMessage(ErrChallengeOutstanding, "challenge "+c.active.ID().String()+" is still active")
	}

	ch := newChallenge(cfg, c.logger, c.releaseSlot)
	c.active = ch

	return ch, nil
}

func (c *Controller) releaseSlot(ch *Challenge) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == ch {
		c.active = nil
	}
}
