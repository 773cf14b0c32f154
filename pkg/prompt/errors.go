package prompt

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig = errors.New("prompt: invalid configuration")

	ErrEmptyTitle            = fmt.Errorf("%w: empty title", ErrInvalidConfig)
	ErrConflictingFallback   = fmt.Errorf("%w: device credential fallback and negative button are mutually exclusive", ErrInvalidConfig)
	ErrMissingNegativeButton = fmt.Errorf("%w: negative button required without device credential fallback", ErrInvalidConfig)
)

type ErrorWithMessage struct {
	Message string
	Err     error
}

func newErrorMessage(err error, msg string) *ErrorWithMessage {
	return &ErrorWithMessage{
		Message: msg,
		Err:     err,
	}
}

func (m *ErrorWithMessage) Error() string {
	if m.Message != "" {
		return m.Err.Error() + " (" + m.Message + ")"
	}
	return m.Err.Error()
}

func (m *ErrorWithMessage) Unwrap() error {
	return m.Err
}
