package ctaphid

import "fmt"

// Command represents CTAPHID command.
type Command byte

const (
	CTAPHID_MSG       Command = 0x03
	CTAPHID_CBOR      Command = 0x10
	CTAPHID_INIT      Command = 0x06
	CTAPHID_PING      Command = 0x01
	CTAPHID_CANCEL    Command = 0x11
	CTAPHID_ERROR     Command = 0x3f
	CTAPHID_KEEPALIVE Command = 0x3b
	CTAPHID_WINK      Command = 0x08
	CTAPHID_LOCK      Command = 0x04
)

func (c Command) String() string {
	switch c {
	case CTAPHID_MSG:
		return "CTAPHID_MSG"
	case CTAPHID_CBOR:
		return "CTAPHID_CBOR"
	case CTAPHID_INIT:
		return "CTAPHID_INIT"
	case CTAPHID_PING:
		return "CTAPHID_PING"
	case CTAPHID_CANCEL:
		return "CTAPHID_CANCEL"
	case CTAPHID_ERROR:
		return "CTAPHID_ERROR"
	case CTAPHID_KEEPALIVE:
		return "CTAPHID_KEEPALIVE"
	case CTAPHID_WINK:
		return "CTAPHID_WINK"
	case CTAPHID_LOCK:
		return "CTAPHID_LOCK"
	default:
		return fmt.Sprintf("Command(0x%02x)", byte(c))
	}
}

// StatusCode is the first byte of every CTAP2 response.
type StatusCode byte

const (
	CTAP2_OK                          StatusCode = 0x00
	CTAP1_ERR_INVALID_COMMAND         StatusCode = 0x01
	CTAP1_ERR_INVALID_PARAMETER       StatusCode = 0x02
	CTAP1_ERR_INVALID_LENGTH          StatusCode = 0x03
	CTAP1_ERR_INVALID_SEQ             StatusCode = 0x04
	CTAP1_ERR_TIMEOUT                 StatusCode = 0x05
	CTAP1_ERR_CHANNEL_BUSY            StatusCode = 0x06
	CTAP1_ERR_LOCK_REQUIRED           StatusCode = 0x0A
	CTAP1_ERR_INVALID_CHANNEL         StatusCode = 0x0B
	CTAP2_ERR_CBOR_UNEXPECTED_TYPE    StatusCode = 0x11
	CTAP2_ERR_INVALID_CBOR            StatusCode = 0x12
	CTAP2_ERR_MISSING_PARAMETER       StatusCode = 0x14
	CTAP2_ERR_LIMIT_EXCEEDED          StatusCode = 0x15
	CTAP2_ERR_PROCESSING              StatusCode = 0x21
	CTAP2_ERR_USER_ACTION_PENDING     StatusCode = 0x23
	CTAP2_ERR_OPERATION_PENDING       StatusCode = 0x24
	CTAP2_ERR_OPERATION_DENIED        StatusCode = 0x27
	CTAP2_ERR_UNSUPPORTED_OPTION      StatusCode = 0x2B
	CTAP2_ERR_INVALID_OPTION          StatusCode = 0x2C
	CTAP2_ERR_KEEPALIVE_CANCEL        StatusCode = 0x2D
	CTAP2_ERR_USER_ACTION_TIMEOUT     StatusCode = 0x2F
	CTAP2_ERR_NOT_ALLOWED             StatusCode = 0x30
	CTAP2_ERR_PIN_INVALID             StatusCode = 0x31
	CTAP2_ERR_PIN_BLOCKED             StatusCode = 0x32
	CTAP2_ERR_PIN_AUTH_INVALID        StatusCode = 0x33
	CTAP2_ERR_PIN_AUTH_BLOCKED        StatusCode = 0x34
	CTAP2_ERR_PIN_NOT_SET             StatusCode = 0x35
	CTAP2_ERR_PUAT_REQUIRED           StatusCode = 0x36
	CTAP2_ERR_PIN_POLICY_VIOLATION    StatusCode = 0x37
	CTAP2_ERR_REQUEST_TOO_LARGE       StatusCode = 0x39
	CTAP2_ERR_ACTION_TIMEOUT          StatusCode = 0x3A
	CTAP2_ERR_UP_REQUIRED             StatusCode = 0x3B
	CTAP2_ERR_UV_BLOCKED              StatusCode = 0x3C
	CTAP2_ERR_INTEGRITY_FAILURE       StatusCode = 0x3D
	CTAP2_ERR_INVALID_SUBCOMMAND      StatusCode = 0x3E
	CTAP2_ERR_UV_INVALID              StatusCode = 0x3F
	CTAP2_ERR_UNAUTHORIZED_PERMISSION StatusCode = 0x40
	CTAP1_ERR_OTHER                   StatusCode = 0x7F
)

var statusNames = map[StatusCode]string{
	CTAP2_OK:                          "CTAP2_OK",
	CTAP1_ERR_INVALID_COMMAND:         "CTAP1_ERR_INVALID_COMMAND",
	CTAP1_ERR_INVALID_PARAMETER:       "CTAP1_ERR_INVALID_PARAMETER",
	CTAP1_ERR_INVALID_LENGTH:          "CTAP1_ERR_INVALID_LENGTH",
	CTAP1_ERR_INVALID_SEQ:             "CTAP1_ERR_INVALID_SEQ",
	CTAP1_ERR_TIMEOUT:                 "CTAP1_ERR_TIMEOUT",
	CTAP1_ERR_CHANNEL_BUSY:            "CTAP1_ERR_CHANNEL_BUSY",
	CTAP1_ERR_LOCK_REQUIRED:           "CTAP1_ERR_LOCK_REQUIRED",
	CTAP1_ERR_INVALID_CHANNEL:         "CTAP1_ERR_INVALID_CHANNEL",
	CTAP2_ERR_CBOR_UNEXPECTED_TYPE:    "CTAP2_ERR_CBOR_UNEXPECTED_TYPE",
	CTAP2_ERR_INVALID_CBOR:            "CTAP2_ERR_INVALID_CBOR",
	CTAP2_ERR_MISSING_PARAMETER:       "CTAP2_ERR_MISSING_PARAMETER",
	CTAP2_ERR_LIMIT_EXCEEDED:          "CTAP2_ERR_LIMIT_EXCEEDED",
	CTAP2_ERR_PROCESSING:              "CTAP2_ERR_PROCESSING",
	CTAP2_ERR_USER_ACTION_PENDING:     "CTAP2_ERR_USER_ACTION_PENDING",
	CTAP2_ERR_OPERATION_PENDING:       "CTAP2_ERR_OPERATION_PENDING",
	CTAP2_ERR_OPERATION_DENIED:        "CTAP2_ERR_OPERATION_DENIED",
	CTAP2_ERR_UNSUPPORTED_OPTION:      "CTAP2_ERR_UNSUPPORTED_OPTION",
	CTAP2_ERR_INVALID_OPTION:          "CTAP2_ERR_INVALID_OPTION",
	CTAP2_ERR_KEEPALIVE_CANCEL:        "CTAP2_ERR_KEEPALIVE_CANCEL",
	CTAP2_ERR_USER_ACTION_TIMEOUT:     "CTAP2_ERR_USER_ACTION_TIMEOUT",
	CTAP2_ERR_NOT_ALLOWED:             "CTAP2_ERR_NOT_ALLOWED",
	CTAP2_ERR_PIN_INVALID:             "CTAP2_ERR_PIN_INVALID",
	CTAP2_ERR_PIN_BLOCKED:             "CTAP2_ERR_PIN_BLOCKED",
	CTAP2_ERR_PIN_AUTH_INVALID:        "CTAP2_ERR_PIN_AUTH_INVALID",
	CTAP2_ERR_PIN_AUTH_BLOCKED:        "CTAP2_ERR_PIN_AUTH_BLOCKED",
	CTAP2_ERR_PIN_NOT_SET:             "CTAP2_ERR_PIN_NOT_SET",
	CTAP2_ERR_PUAT_REQUIRED:           "CTAP2_ERR_PUAT_REQUIRED",
	CTAP2_ERR_PIN_POLICY_VIOLATION:    "CTAP2_ERR_PIN_POLICY_VIOLATION",
	CTAP2_ERR_REQUEST_TOO_LARGE:       "CTAP2_ERR_REQUEST_TOO_LARGE",
	CTAP2_ERR_ACTION_TIMEOUT:          "CTAP2_ERR_ACTION_TIMEOUT",
	CTAP2_ERR_UP_REQUIRED:             "CTAP2_ERR_UP_REQUIRED",
	CTAP2_ERR_UV_BLOCKED:              "CTAP2_ERR_UV_BLOCKED",
	CTAP2_ERR_INTEGRITY_FAILURE:       "CTAP2_ERR_INTEGRITY_FAILURE",
	CTAP2_ERR_INVALID_SUBCOMMAND:      "CTAP2_ERR_INVALID_SUBCOMMAND",
	CTAP2_ERR_UV_INVALID:              "CTAP2_ERR_UV_INVALID",
	CTAP2_ERR_UNAUTHORIZED_PERMISSION: "CTAP2_ERR_UNAUTHORIZED_PERMISSION",
	CTAP1_ERR_OTHER:                   "CTAP1_ERR_OTHER",
}

func (s StatusCode) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("StatusCode(0x%02x)", byte(s))
}

type CapabilityFlag byte

const (
	CAPABILITY_WINK CapabilityFlag = 0x01
	CAPABILITY_CBOR CapabilityFlag = 0x04
	CAPABILITY_NMSG CapabilityFlag = 0x08
)

// KeepaliveStatus is carried by CTAPHID_KEEPALIVE while the authenticator works on a request.
type KeepaliveStatus byte

const (
	STATUS_PROCESSING KeepaliveStatus = 1
	STATUS_UPNEEDED   KeepaliveStatus = 2
)

func (s KeepaliveStatus) String() string {
	switch s {
	case STATUS_PROCESSING:
		return "processing"
	case STATUS_UPNEEDED:
		return "user presence needed"
	default:
		return fmt.Sprintf("KeepaliveStatus(%d)", byte(s))
	}
}

const (
	reportSize     = 64
	initHeaderSize = 7
	contHeaderSize = 5
	initPacketBit  = 0x80

	// One init packet followed by at most 128 continuation packets.
	maxPayloadSize = reportSize - initHeaderSize + 128*(reportSize-contHeaderSize)
)
