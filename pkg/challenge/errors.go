package challenge

import (
	"errors"
)

var (
	ErrChallengeOutstanding = errors.New("challenge: another challenge is awaiting result")
	ErrChallengeDone        = errors.New("challenge: terminal outcome already delivered")
	ErrChallengeCanceled    = errors.New("challenge: canceled")
	ErrNoAuthenticator      = errors.New("challenge: no authenticator")
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
