package challenge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/go-ctap/uvprompt/pkg/outcome"
	"github.com/go-ctap/uvprompt/pkg/prompt"
	"github.com/google/uuid"
)

type State byte

const (
	Idle State = iota
	AwaitingResult
	Resolved
	Canceled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingResult:
		return "awaiting result"
	case Resolved:
		return "resolved"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Challenge is a handle to one issued attempt. Outcomes are queued as the
// platform reports them and handed out one by one through Next, on whatever
// goroutine the caller uses, so no further synchronization is needed by
// the caller.
type Challenge struct {
	id     uuid.UUID
	cfg    prompt.Config
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	queue     []outcome.Outcome
	delivered bool
	notify    chan struct{}
	cancel    context.CancelFunc
	release   func(*Challenge)
}

func newChallenge(cfg prompt.Config, logger *slog.Logger, release func(*Challenge)) *Challenge {
	id := uuid.New()

	return &Challenge{
		id:      id,
		cfg:     cfg,
		logger:  logger.With("challenge", id.String()),
		notify:  make(chan struct{}, 1),
		release: release,
	}
}

func (ch *Challenge) ID() uuid.UUID {
	return ch.id
}

func (ch *Challenge) Config() prompt.Config {
	return ch.cfg
}

func (ch *Challenge) State() State {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.state
}

// Next returns the next outcome reported for this challenge, blocking until one
// is available or ctx is done. Failed outcomes may be followed by more outcomes;
// after the terminal one Next returns ErrChallengeDone.
func (ch *Challenge) Next(ctx context.Context) (outcome.Outcome, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ch.mu.Lock()
		if ch.state == Canceled {
			ch.mu.Unlock()
			return nil, ErrChallengeCanceled
		}
		if len(ch.queue) > 0 {
			o := ch.queue[0]
			ch.queue = ch.queue[1:]
			if outcome.Terminal(o) {
				ch.delivered = true
			}
			ch.mu.Unlock()
			return o, nil
		}
		if ch.delivered {
			ch.mu.Unlock()
			return nil, ErrChallengeDone
		}
		ch.mu.Unlock()

		select {
		case <-ch.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Wait drains outcomes until the terminal one, calling onFailed for every
// rejected attempt in between. onFailed may be nil.
func (ch *Challenge) Wait(ctx context.Context, onFailed func()) (outcome.Outcome, error) {
	for {
		o, err := ch.Next(ctx)
		if err != nil {
			return nil, err
		}

		if outcome.Terminal(o) {
			return o, nil
		}

		if onFailed != nil {
			onFailed()
		}
	}
}

// Cancel stops the challenge. It is safe to call more than once and from any
// goroutine; once it returns no further outcome is handed out.
func (ch *Challenge) Cancel() {
	ch.mu.Lock()
	if ch.state == Canceled || ch.delivered {
		ch.mu.Unlock()
		return
	}
	ch.state = Canceled
	ch.queue = nil
	cancel := ch.cancel
	ch.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	ch.release(ch)
	ch.signal()

	ch.logger.Info("challenge canceled")
}

// start moves an idle challenge to AwaitingResult. It returns false if the
// challenge was canceled while it was being issued.
func (ch *Challenge) start(cancel context.CancelFunc) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.state != Idle {
		return false
	}
	ch.cancel = cancel
	ch.state = AwaitingResult

	return true
}

// resolve queues a terminal outcome without the platform being involved.
func (ch *Challenge) resolve(o outcome.Outcome) {
	ch.push(o)
}

// push queues o and reports whether the challenge still accepts outcomes.
func (ch *Challenge) push(o outcome.Outcome) bool {
	ch.mu.Lock()
	if ch.state == Canceled || ch.state == Resolved {
		ch.mu.Unlock()
		return false
	}

	ch.queue = append(ch.queue, o)
	terminal := outcome.Terminal(o)
	if terminal {
		ch.state = Resolved
	}
	cancel := ch.cancel
	ch.mu.Unlock()

	ch.logger.Debug("challenge outcome", "kind", o.Kind().String())

	if terminal {
		if cancel != nil {
			cancel()
		}
		ch.release(ch)
	}
	ch.signal()

	return !terminal
}

func (ch *Challenge) signal() {
	select {
	case ch.notify <- struct{}{}:
	default:
	}
}

// pump forwards platform outcomes into the queue until a terminal one arrives.
func (ch *Challenge) pump(events <-chan outcome.Outcome) {
	for o := range events {
		if o == nil {
			continue
		}
		if !ch.push(o) {
			return
		}
	}

	ch.push(outcome.Error{
		Code:    outcome.CodeCanceled,
		Message: "platform ended the challenge without a result",
	})
}
