// Package platformtest provides an in-memory platform whose readiness and
// challenge outcomes are driven by the test.
package platformtest

import (
	"context"
	"sync"

	"github.com/go-ctap/uvprompt/pkg/capability"
	"github.com/go-ctap/uvprompt/pkg/outcome"
	"github.com/go-ctap/uvprompt/pkg/prompt"
)

type Platform struct {
	mu        sync.Mutex
	readiness capability.Readiness
	script    []outcome.Outcome
	startErr  error
	probes    int
	configs   []prompt.Config
	sessions  []*Session
}

func New(r capability.Readiness) *Platform {
	return &Platform{readiness: r}
}

func (p *Platform) SetReadiness(r capability.Readiness) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.readiness = r
}

// Script makes every following challenge play outcomes on its own, in order.
// Without a script outcomes are sent with Session.Emit.
func (p *Platform) Script(outcomes ...outcome.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.script = outcomes
}

// FailStart makes Authenticate return err.
func (p *Platform) FailStart(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startErr = err
}

func (p *Platform) Readiness(context.Context) capability.Readiness {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.probes++
	return p.readiness
}

func (p *Platform) Authenticate(ctx context.Context, cfg prompt.Config) (<-chan outcome.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.configs = append(p.configs, cfg)
	if p.startErr != nil {
		return nil, p.startErr
	}

	s := newSession(ctx)
	p.sessions = append(p.sessions, s)

	if len(p.script) > 0 {
		script := p.script
		go func() {
			for _, o := range script {
				if !s.Emit(o) {
					return
				}
			}
		}()
	}

	return s.ch, nil
}

// Probes is the number of readiness queries so far.
func (p *Platform) Probes() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.probes
}

// Calls is the number of times the challenge primitive was invoked.
func (p *Platform) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.configs)
}

// LastConfig returns the configuration of the most recent challenge.
func (p *Platform) LastConfig() (prompt.Config, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.configs) == 0 {
		return prompt.Config{}, false
	}
	return p.configs[len(p.configs)-1], true
}

// Session returns the most recently started challenge session.
func (p *Platform) Session() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

// Session is one running challenge on the fake platform.
type Session struct {
	ctx context.Context
	ch  chan outcome.Outcome

	mu     sync.Mutex
	closed bool
}

func newSession(ctx context.Context) *Session {
	s := &Session{
		ctx: ctx,
		ch:  make(chan outcome.Outcome),
	}

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		s.close()
	}()

	return s
}

// Emit delivers o to the controller. It returns false once the session ended,
// either because a terminal outcome was sent or because it was canceled.
func (s *Session) Emit(o outcome.Outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if s.ctx.Err() != nil {
		s.close()
		return false
	}

	select {
	case s.ch <- o:
	case <-s.ctx.Done():
		s.close()
		return false
	}

	if outcome.Terminal(o) {
		s.close()
	}

	return true
}

// Done is closed once the controller canceled the session.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Session) close() {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
