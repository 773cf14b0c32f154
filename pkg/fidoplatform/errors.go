package fidoplatform

import (
	"errors"
	"io"

	"github.com/go-ctap/uvprompt/pkg/ctaphid"
	"github.com/go-ctap/uvprompt/pkg/device"
	"github.com/go-ctap/uvprompt/pkg/outcome"
)

var (
	ErrNoOpener   = errors.New("fidoplatform: no device opener")
	ErrNoPINEntry = errors.New("fidoplatform: no PIN entry available")
)

// statusCodes maps authenticator statuses that end a challenge to outcome codes.
var statusCodes = map[ctaphid.StatusCode]outcome.Code{
	ctaphid.CTAP2_ERR_UV_BLOCKED:          outcome.CodeLockout,
	ctaphid.CTAP2_ERR_PIN_AUTH_BLOCKED:    outcome.CodeLockout,
	ctaphid.CTAP2_ERR_PIN_BLOCKED:         outcome.CodeLockoutPermanent,
	ctaphid.CTAP2_ERR_KEEPALIVE_CANCEL:    outcome.CodeCanceled,
	ctaphid.CTAP2_ERR_OPERATION_DENIED:    outcome.CodeUserCanceled,
	ctaphid.CTAP2_ERR_USER_ACTION_TIMEOUT: outcome.CodeTimeout,
	ctaphid.CTAP2_ERR_ACTION_TIMEOUT:      outcome.CodeTimeout,
	ctaphid.CTAP1_ERR_TIMEOUT:             outcome.CodeTimeout,
	ctaphid.CTAP2_ERR_PIN_NOT_SET:         outcome.CodeNoDeviceCredential,
	ctaphid.CTAP2_ERR_NOT_ALLOWED:         outcome.CodeNoBiometrics,
	ctaphid.CTAP2_ERR_LIMIT_EXCEEDED:      outcome.CodeNoSpace,
	ctaphid.CTAP1_ERR_CHANNEL_BUSY:        outcome.CodeHardwareUnavailable,
}

// Normalize turns a failed authenticator call into the terminal outcome of a challenge.
// The message always carries the underlying error text.
func Normalize(err error) outcome.Error {
	code := outcome.CodeUnableToProcess

	if status, ok := ctaphid.StatusOf(err); ok {
		if c, ok := statusCodes[status]; ok {
			code = c
		}
		return outcome.Error{Code: code, Message: err.Error()}
	}

	switch {
	case errors.Is(err, device.ErrUvNotConfigured):
		code = outcome.CodeNoBiometrics
	case errors.Is(err, device.ErrPinNotSet), errors.Is(err, ErrNoPINEntry):
		code = outcome.CodeNoDeviceCredential
	case errors.Is(err, device.ErrNotSupported):
		code = outcome.CodeHardwareNotPresent
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.ErrClosedPipe):
		code = outcome.CodeHardwareUnavailable
	}

	return outcome.Error{Code: code, Message: err.Error()}
}
