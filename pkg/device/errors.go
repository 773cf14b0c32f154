package device

import (
	"errors"
)

var (
	ErrNotSupported     = errors.New("device: not supported")
	ErrPinNotSet        = errors.New("device: pin not set")
	ErrUvNotConfigured  = errors.New("device: UV not configured")
	ErrNoProtocol       = errors.New("device: no supported pinUvAuthProtocol")
	ErrPingPongMismatch = errors.New("device: ping/pong mismatch")
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
