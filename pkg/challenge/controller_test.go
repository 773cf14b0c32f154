package challenge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ctap/uvprompt/pkg/capability"
	"github.com/go-ctap/uvprompt/pkg/outcome"
	"github.com/go-ctap/uvprompt/pkg/platformtest"
	"github.com/go-ctap/uvprompt/pkg/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newController(p *platformtest.Platform) *Controller {
	return New(capability.NewProber(p), p)
}

func defaultConfig(t *testing.T) prompt.Config {
	t.Helper()

	cfg, err := prompt.NewDefault("MyApp")
	require.NoError(t, err)
	return cfg
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestIssue_ShortCircuitsWhenNotUsable(t *testing.T) {
	for _, r := range []capability.Readiness{
		capability.ReadinessNoHardware,
		capability.ReadinessHardwareUnavailable,
		capability.ReadinessNoneEnrolled,
		capability.ReadinessStatusUnknown,
		capability.ReadinessSecurityUpdateRequired,
		capability.Readiness(77),
	} {
		p := platformtest.New(r)
		c := newController(p)

		ch, err := c.Issue(testContext(t), defaultConfig(t))
		require.NoError(t, err)

		o, err := ch.Wait(testContext(t), nil)
		require.NoError(t, err)

		e, ok := o.(outcome.Error)
		require.True(t, ok, "readiness %d", r)
		assert.Contains(t, e.Message, capability.Classify(r).String())
		assert.Equal(t, 0, p.Calls(), "platform must not be asked for readiness %d", r)
		assert.Equal(t, Resolved, ch.State())
		assert.False(t, c.Outstanding())
	}
}

func TestIssue_NotEnrolled(t *testing.T) {
	p := platformtest.New(capability.ReadinessNoneEnrolled)
	c := newController(p)

	o, err := c.Authenticate(testContext(t), defaultConfig(t), nil)
	require.NoError(t, err)

	e, ok := o.(outcome.Error)
	require.True(t, ok)
	assert.Contains(t, e.Message, "enrolled")
	assert.Equal(t, outcome.CodeNoBiometrics, e.Code)
	assert.Equal(t, 0, p.Calls())
	assert.Equal(t, 1, p.Probes())
}

func TestIssue_Succeeded(t *testing.T) {
	p := platformtest.New(capability.ReadinessSuccess)
	p.Script(outcome.Succeeded{})
	c := newController(p)

	o, err := c.Authenticate(testContext(t), defaultConfig(t), nil)
	require.NoError(t, err)
	assert.Equal(t, outcome.Succeeded{}, o)
	assert.Equal(t, 1, p.Calls())

	cfg, ok := p.LastConfig()
	require.True(t, ok)
	assert.Equal(t, "Login to MyApp", cfg.Title())
}

func TestIssue_FailedTwiceThenSucceeded(t *testing.T) {
	p := platformtest.New(capability.ReadinessSuccess)
	c := newController(p)
	ctx := testContext(t)

	ch, err := c.Issue(ctx, defaultConfig(t))
	require.NoError(t, err)
	assert.Equal(t, AwaitingResult, ch.State())

	session := p.Session()
	require.NotNil(t, session)

	for i := 0; i < 2; i++ {
		require.True(t, session.Emit(outcome.Failed{}))

		o, err := ch.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, outcome.Failed{}, o)
		assert.Equal(t, AwaitingResult, ch.State())
		assert.True(t, c.Outstanding())
	}

	require.True(t, session.Emit(outcome.Succeeded{}))

	o, err := ch.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, outcome.Succeeded{}, o)
	assert.Equal(t, Resolved, ch.State())
	assert.False(t, c.Outstanding())

	_, err = ch.Next(ctx)
	assert.ErrorIs(t, err, ErrChallengeDone)
	assert.Equal(t, 1, p.Calls())
}

func TestAuthenticate_CountsFailedAttempts(t *testing.T) {
	p := platformtest.New(capability.ReadinessSuccess)
	p.Script(outcome.Failed{}, outcome.Failed{}, outcome.Succeeded{})
	c := newController(p)

	failed := 0
	o, err := c.Authenticate(testContext(t), defaultConfig(t), func() { failed++ })
	require.NoError(t, err)
	assert.Equal(t, outcome.Succeeded{}, o)
	assert.Equal(t, 2, failed)
}

func TestIssue_PlatformErrorsAreNormalized(t *testing.T) {
	for _, want := range []outcome.Error{
		{Code: outcome.CodeUserCanceled, Message: "Authentication canceled by user"},
		{Code: outcome.CodeTimeout, Message: "Timeout waiting for user"},
		{Code: outcome.CodeLockout, Message: "Too many attempts"},
	} {
		p := platformtest.New(capability.ReadinessSuccess)
		p.Script(outcome.Failed{}, want)
		c := newController(p)

		o, err := c.Authenticate(testContext(t), defaultConfig(t), nil)
		require.NoError(t, err)
		assert.Equal(t, outcome.KindError, o.Kind())
		assert.Equal(t, want, o)
	}
}

func TestIssue_SecondChallengeRejected(t *testing.T) {
	p := platformtest.New(capability.ReadinessSuccess)
	c := newController(p)
	ctx := testContext(t)

	first, err := c.Issue(ctx, defaultConfig(t))
	require.NoError(t, err)

	fallback, err := prompt.NewFallback("MyApp")
	require.NoError(t, err)

	second, err := c.Issue(ctx, fallback)
	assert.ErrorIs(t, err, ErrChallengeOutstanding)
	assert.Nil(t, second)

	// The first challenge is untouched.
	assert.Equal(t, AwaitingResult, first.State())
	assert.Equal(t, 1, p.Calls())
	assert.Equal(t, 1, p.Probes())

	require.True(t, p.Session().Emit(outcome.Succeeded{}))
	o, err := first.Wait(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, outcome.Succeeded{}, o)

	// Once resolved the slot is free again.
	p.Script(outcome.Succeeded{})
	o, err = c.Authenticate(ctx, fallback, nil)
	require.NoError(t, err)
	assert.Equal(t, outcome.Succeeded{}, o)
}

func TestIssue_InvalidConfigNeverReachesPlatform(t *testing.T) {
	p := platformtest.New(capability.ReadinessSuccess)
	c := newController(p)

	_, err := c.Issue(testContext(t), prompt.Config{})
	assert.ErrorIs(t, err, prompt.ErrInvalidConfig)

	_, err = prompt.NewFallback("")
	assert.ErrorIs(t, err, prompt.ErrEmptyTitle)

	assert.Equal(t, 0, p.Probes())
	assert.Equal(t, 0, p.Calls())
	assert.False(t, c.Outstanding())
}

func TestChallenge_Cancel(t *testing.T) {
	p := platformtest.New(capability.ReadinessSuccess)
	c := newController(p)
	ctx := testContext(t)

	ch, err := c.Issue(ctx, defaultConfig(t))
	require.NoError(t, err)
	session := p.Session()

	ch.Cancel()
	ch.Cancel()
	c.Cancel()

	assert.Equal(t, Canceled, ch.State())
	assert.False(t, c.Outstanding())

	select {
	case <-session.Done():
	case <-ctx.Done():
		t.Fatal("platform was not told to stop")
	}

	// Nothing reported after cancel reaches the caller.
	assert.False(t, session.Emit(outcome.Succeeded{}))
	_, err = ch.Next(ctx)
	assert.ErrorIs(t, err, ErrChallengeCanceled)
}

func TestChallenge_CancelDropsQueuedOutcomes(t *testing.T) {
	p := platformtest.New(capability.ReadinessSuccess)
	c := newController(p)
	ctx := testContext(t)

	ch, err := c.Issue(ctx, defaultConfig(t))
	require.NoError(t, err)

	require.True(t, p.Session().Emit(outcome.Failed{}))
	ch.Cancel()

	_, err = ch.Next(ctx)
	assert.ErrorIs(t, err, ErrChallengeCanceled)
}

func TestChallenge_CancelAfterResolveIsNoop(t *testing.T) {
	p := platformtest.New(capability.ReadinessSuccess)
	p.Script(outcome.Succeeded{})
	c := newController(p)
	ctx := testContext(t)

	ch, err := c.Issue(ctx, defaultConfig(t))
	require.NoError(t, err)

	o, err := ch.Wait(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, outcome.Succeeded{}, o)

	ch.Cancel()
	assert.Equal(t, Resolved, ch.State())
}

func TestAuthenticate_ContextDoneCancelsChallenge(t *testing.T) {
	p := platformtest.New(capability.ReadinessSuccess)
	c := newController(p)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Authenticate(ctx, defaultConfig(t), nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, c.Outstanding())
}

func TestIssue_PlatformStartFailure(t *testing.T) {
	p := platformtest.New(capability.ReadinessSuccess)
	p.FailStart(errors.New("sensor busy"))
	c := newController(p)

	o, err := c.Authenticate(testContext(t), defaultConfig(t), nil)
	require.NoError(t, err)
	assert.Equal(t, outcome.Error{Code: outcome.CodeUnableToProcess, Message: "sensor busy"}, o)
	assert.False(t, c.Outstanding())
}

func TestIssue_PlatformClosesWithoutResult(t *testing.T) {
	c := New(
		capability.NewProber(capability.SourceFunc(func(context.Context) capability.Readiness {
			return capability.ReadinessSuccess
		})),
		AuthenticatorFunc(func(context.Context, prompt.Config) (<-chan outcome.Outcome, error) {
			events := make(chan outcome.Outcome, 1)
			events <- outcome.Failed{}
			close(events)
			return events, nil
		}),
	)

	o, err := c.Authenticate(testContext(t), defaultConfig(t), nil)
	require.NoError(t, err)

	e, ok := o.(outcome.Error)
	require.True(t, ok)
	assert.Equal(t, outcome.CodeCanceled, e.Code)
}

func TestIssue_NoAuthenticator(t *testing.T) {
	p := platformtest.New(capability.ReadinessSuccess)
	c := New(capability.NewProber(p), nil)

	o, err := c.Authenticate(testContext(t), defaultConfig(t), nil)
	require.NoError(t, err)
	assert.Equal(t, outcome.KindError, o.Kind())
}
