package ctap

import (
	"fmt"

	"github.com/go-ctap/uvprompt/pkg/pinuv"
	"github.com/google/uuid"
	"github.com/ldclabs/cose/key"
)

// Command is the first byte of a CTAP2 request.
type Command byte

const (
	AuthenticatorGetInfo   Command = 0x04
	AuthenticatorClientPIN Command = 0x06
	AuthenticatorSelection Command = 0x0b
)

type ClientPINSubCommand uint

const (
	ClientPINSubCommandGetPINRetries ClientPINSubCommand = iota + 1
	ClientPINSubCommandGetKeyAgreement
	ClientPINSubCommandSetPIN
	ClientPINSubCommandChangePIN
	ClientPINSubCommandGetPinToken
	ClientPINSubCommandGetPinUvAuthTokenUsingUvWithPermissions
	ClientPINSubCommandGetUVRetries
	_
	ClientPINSubCommandGetPinUvAuthTokenUsingPinWithPermissions
)

var subCommandNames = map[ClientPINSubCommand]string{
	ClientPINSubCommandGetPINRetries:                            "getPINRetries",
	ClientPINSubCommandGetKeyAgreement:                          "getKeyAgreement",
	ClientPINSubCommandSetPIN:                                   "setPIN",
	ClientPINSubCommandChangePIN:                                "changePIN",
	ClientPINSubCommandGetPinToken:                              "getPinToken",
	ClientPINSubCommandGetPinUvAuthTokenUsingUvWithPermissions:  "getPinUvAuthTokenUsingUvWithPermissions",
	ClientPINSubCommandGetUVRetries:                             "getUVRetries",
	ClientPINSubCommandGetPinUvAuthTokenUsingPinWithPermissions: "getPinUvAuthTokenUsingPinWithPermissions",
}

func (s ClientPINSubCommand) String() string {
	if name, ok := subCommandNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ClientPINSubCommand(%d)", uint(s))
}

// Option is a key of the options map reported by authenticatorGetInfo.
type Option string

const (
	OptionPlatformDevice       Option = "plat"
	OptionClientPIN            Option = "clientPin"
	OptionUserPresence         Option = "up"
	OptionUserVerification     Option = "uv"
	OptionPinUvAuthToken       Option = "pinUvAuthToken"
	OptionBioEnroll            Option = "bioEnroll"
	OptionUvBioEnroll          Option = "uvBioEnroll"
	OptionUserVerificationMgmt Option = "userVerificationMgmtPreview"
	OptionAlwaysUv             Option = "alwaysUv"
)

// Permission is a bit set of what a pinUvAuthToken may be used for.
type Permission byte

const (
	PermissionNone                 Permission = 0x00
	PermissionMakeCredential       Permission = 0x01
	PermissionGetAssertion         Permission = 0x02
	PermissionCredentialManagement Permission = 0x04
	PermissionBioEnrollment        Permission = 0x08
)

// UV modality bits, as registered for FIDO authenticators.
const (
	UVModalityPresenceInternal    uint = 0x00000001
	UVModalityFingerprintInternal uint = 0x00000002
	UVModalityPasscodeInternal    uint = 0x00000004
	UVModalityFaceprintInternal   uint = 0x00000010
	UVModalityEyeprintInternal    uint = 0x00000040
)

type GetInfoResponse struct {
	Versions                    []string        `cbor:"1,keyasint"`
	Extensions                  []string        `cbor:"2,keyasint"`
	AAGUID                      uuid.UUID       `cbor:"3,keyasint"`
	Options                     map[Option]bool `cbor:"4,keyasint"`
	MaxMsgSize                  uint            `cbor:"5,keyasint"`
	PinUvAuthProtocols          []pinuv.Version `cbor:"6,keyasint"`
	Transports                  []string        `cbor:"9,keyasint"`
	ForcePinChange              bool            `cbor:"12,keyasint"`
	MinPinLength                uint            `cbor:"13,keyasint"`
	FirmwareVersion             uint            `cbor:"14,keyasint"`
	PreferredPlatformUvAttempts uint            `cbor:"17,keyasint"`
	UvModality                  uint            `cbor:"18,keyasint"`
	UvCountSinceLastPinEntry    uint            `cbor:"23,keyasint"`
}

// Option reports whether opt is supported at all and, if so, its current value.
func (r *GetInfoResponse) Option(opt Option) (value bool, supported bool) {
	value, supported = r.Options[opt]
	return
}

// Biometric reports whether the authenticator's built-in user verification is biometric.
// Authenticators that predate uvModality are treated as biometric when they support bioEnroll.
func (r *GetInfoResponse) Biometric() bool {
	if r.UvModality != 0 {
		return r.UvModality&(UVModalityFingerprintInternal|UVModalityFaceprintInternal|UVModalityEyeprintInternal) != 0
	}

	_, ok := r.Options[OptionBioEnroll]
	return ok
}

type ClientPINRequest struct {
	PinUvAuthProtocol pinuv.Version       `cbor:"1,keyasint,omitzero"`
	SubCommand        ClientPINSubCommand `cbor:"2,keyasint"`
	KeyAgreement      key.Key             `cbor:"3,keyasint,omitzero"`
	PinUvAuthParam    []byte              `cbor:"4,keyasint,omitempty"`
	NewPinEnc         []byte              `cbor:"5,keyasint,omitempty"`
	PinHashEnc        []byte              `cbor:"6,keyasint,omitempty"`
	Permissions       Permission          `cbor:"9,keyasint,omitempty"`
	RPID              string              `cbor:"10,keyasint,omitempty"`
}

type ClientPINResponse struct {
	KeyAgreement    key.Key `cbor:"1,keyasint"`
	PinUvAuthToken  []byte  `cbor:"2,keyasint"`
	PinRetries      uint    `cbor:"3,keyasint"`
	PowerCycleState bool    `cbor:"4,keyasint"`
	UvRetries       uint    `cbor:"5,keyasint"`
}
