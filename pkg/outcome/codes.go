package outcome

import "strconv"

// Code identifies why a challenge ended with an Error. Values match the host
// platform's biometric prompt error constants so they can be passed through unchanged.
type Code int

const (
	CodeHardwareUnavailable Code = 1
	CodeUnableToProcess     Code = 2
	CodeTimeout             Code = 3
	CodeNoSpace             Code = 4
	CodeCanceled            Code = 5
	CodeLockout             Code = 7
	CodeVendor              Code = 8
	CodeLockoutPermanent    Code = 9
	CodeUserCanceled        Code = 10
	CodeNoBiometrics        Code = 11
	CodeHardwareNotPresent  Code = 12
	CodeNegativeButton      Code = 13
	CodeNoDeviceCredential  Code = 14
)

var codeNames = map[Code]string{
	CodeHardwareUnavailable: "hardware unavailable",
	CodeUnableToProcess:     "unable to process",
	CodeTimeout:             "timeout",
	CodeNoSpace:             "no space",
	CodeCanceled:            "canceled",
	CodeLockout:             "lockout",
	CodeVendor:              "vendor",
	CodeLockoutPermanent:    "permanent lockout",
	CodeUserCanceled:        "user canceled",
	CodeNoBiometrics:        "no biometrics",
	CodeHardwareNotPresent:  "hardware not present",
	CodeNegativeButton:      "negative button",
	CodeNoDeviceCredential:  "no device credential",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "code " + strconv.Itoa(int(c))
}
