package capability

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-ctap/uvprompt/pkg/options"
)

// Source reports the platform's current biometric readiness.
type Source interface {
	Readiness(ctx context.Context) Readiness
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func(ctx context.Context) Readiness

func (f SourceFunc) Readiness(ctx context.Context) Readiness {
	return f(ctx)
}

// Prober answers whether a challenge can be issued right now.
// Every call queries the Source again; nothing is cached because hardware
// and enrollment state may change between calls.
type Prober struct {
	src    Source
	logger *slog.Logger
}

func NewProber(src Source, opts ...options.Option) *Prober {
	oo := options.NewOptions(opts...)

	return &Prober{
		src:    src,
		logger: oo.Logger,
	}
}

// Probe queries the Source and classifies the result.
func (p *Prober) Probe(ctx context.Context) Status {
	r, err := p.readiness(ctx)
	if err != nil {
		p.logger.Debug("biometric status", "status", Unknown.String(), "err", err)
		return Unknown
	}

	status := Classify(r)
	p.logger.Debug("biometric status",
		"readiness", int(r),
		"status", status.String(),
		"description", status.Description(),
	)

	return status
}

// IsUsable reports whether Probe returns Usable.
func (p *Prober) IsUsable(ctx context.Context) bool {
	return p.Probe(ctx) == Usable
}

func (p *Prober) readiness(ctx context.Context) (r Readiness, err error) {
	if p == nil || p.src == nil {
		return ReadinessStatusUnknown, ErrNoSource
	}

	defer func() {
		if v := recover(); v != nil {
			r, err = ReadinessStatusUnknown, fmt.Errorf("%w: %v", ErrSourcePanicked, v)
		}
	}()

	return p.src.Readiness(ctx), nil
}
