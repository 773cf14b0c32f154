package outcome

import (
	"strconv"

	"github.com/go-ctap/uvprompt/pkg/capability"
)

type Kind byte

const (
	KindSucceeded Kind = iota + 1
	KindFailed
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindSucceeded:
		return "succeeded"
	case KindFailed:
		return "failed"
	case KindError:
		return "error"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Outcome is the result of one issued challenge. The set of variants is closed:
// Succeeded, Failed and Error.
type Outcome interface {
	Kind() Kind
	isOutcome()
}

// Succeeded means the presented credential was accepted.
type Succeeded struct{}

func (Succeeded) Kind() Kind { return KindSucceeded }
func (Succeeded) isOutcome() {}

// Failed means a presented credential was rejected. The challenge stays active.
type Failed struct{}

func (Failed) Kind() Kind { return KindFailed }
func (Failed) isOutcome() {}

// Error means the challenge was terminated, by the platform or because it could not be issued.
type Error struct {
	Code    Code
	Message string
}

func (Error) Kind() Kind { return KindError }
func (Error) isOutcome() {}

func (e Error) Error() string {
	return "outcome: " + e.Code.String() + ": " + e.Message
}

// Terminal reports whether no further outcome follows o.
func Terminal(o Outcome) bool {
	return o != nil && o.Kind() != KindFailed
}

// FromStatus synthesizes the Error returned when a challenge is refused because the
// capability probe did not report Usable.
func FromStatus(s capability.Status) Error {
	code := CodeUnableToProcess
	switch s {
	case capability.NoHardware:
		code = CodeHardwareNotPresent
	case capability.HardwareUnavailable:
		code = CodeHardwareUnavailable
	case capability.NotEnrolled:
		code = CodeNoBiometrics
	}

	return Error{
		Code:    code,
		Message: s.String() + ": " + s.Description(),
	}
}

// Describe renders o as a short notification text.
func Describe(o Outcome) string {
	switch v := o.(type) {
	case Succeeded:
		return "Authentication succeeded!"
	case Failed:
		return "Authentication failed"
	case Error:
		return "Authentication error: " + v.Message
	default:
		return "Authentication error"
	}
}
