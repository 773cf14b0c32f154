package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, Usable, Classify(ReadinessSuccess))
	assert.Equal(t, NoHardware, Classify(ReadinessNoHardware))
	assert.Equal(t, HardwareUnavailable, Classify(ReadinessHardwareUnavailable))
	assert.Equal(t, NotEnrolled, Classify(ReadinessNoneEnrolled))

	// Anything not explicitly recognized must fail closed.
	for _, r := range []Readiness{
		ReadinessStatusUnknown,
		ReadinessUnsupported,
		ReadinessSecurityUpdateRequired,
		Readiness(42),
		Readiness(-100),
	} {
		assert.Equal(t, Unknown, Classify(r), "readiness %d", r)
	}
}

func TestProber_Probe(t *testing.T) {
	current := ReadinessNoneEnrolled
	p := NewProber(SourceFunc(func(context.Context) Readiness {
		return current
	}))

	ctx := context.Background()
	assert.Equal(t, NotEnrolled, p.Probe(ctx))
	assert.Equal(t, NotEnrolled, p.Probe(ctx))
	assert.False(t, p.IsUsable(ctx))

	// Enrollment happened between calls, the prober must notice.
	current = ReadinessSuccess
	assert.Equal(t, Usable, p.Probe(ctx))
	assert.True(t, p.IsUsable(ctx))
}

func TestProber_FailsClosed(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, Unknown, NewProber(nil).Probe(ctx))

	var nilProber *Prober
	assert.Equal(t, Unknown, nilProber.Probe(ctx))

	panicking := NewProber(SourceFunc(func(context.Context) Readiness {
		panic("sensor driver crashed")
	}))
	assert.NotPanics(t, func() {
		assert.Equal(t, Unknown, panicking.Probe(ctx))
	})
	assert.False(t, panicking.IsUsable(ctx))
}

func TestStatus_Description(t *testing.T) {
	assert.Contains(t, NotEnrolled.Description(), "enrolled")
	assert.Equal(t, "not enrolled", NotEnrolled.String())
	assert.Equal(t, "unknown", Status(99).String())
}
