package ctaphid

import (
	"errors"
	"fmt"
)

var (
	ErrMessageTooLarge        = errors.New("ctaphid: message payload too large")
	ErrUnexpectedCommand      = errors.New("ctaphid: unexpected command")
	ErrInvalidResponseMessage = errors.New("ctaphid: invalid response message")
	ErrNonceMismatch          = errors.New("ctaphid: init nonce mismatch")
)

// CTAPError is returned when the authenticator answers a CBOR request with a non-zero status.
type CTAPError struct {
	Command    byte
	StatusCode StatusCode
}

func (e *CTAPError) Error() string {
	return fmt.Sprintf("ctaphid: command 0x%02x failed (%s)", e.Command, e.StatusCode)
}

// HIDError is returned when the authenticator answers with CTAPHID_ERROR.
type HIDError struct {
	Code byte
}

func (e *HIDError) Error() string {
	return fmt.Sprintf("ctaphid: transport error 0x%02x", e.Code)
}

// StatusOf extracts the authenticator status code from err, if there is one.
func StatusOf(err error) (StatusCode, bool) {
	var ctapErr *CTAPError
	if errors.As(err, &ctapErr) {
		return ctapErr.StatusCode, true
	}
	return 0, false
}
