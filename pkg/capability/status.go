package capability

// Status classifies whether a challenge can be issued right now.
type Status int

const (
	Usable Status = iota
	NoHardware
	HardwareUnavailable
	NotEnrolled
	Unknown
)

func (s Status) String() string {
	switch s {
	case Usable:
		return "usable"
	case NoHardware:
		return "no hardware"
	case HardwareUnavailable:
		return "hardware unavailable"
	case NotEnrolled:
		return "not enrolled"
	default:
		return "unknown"
	}
}

// Description returns a sentence a caller can show next to the status to suggest a remediation.
func (s Status) Description() string {
	switch s {
	case Usable:
		return "biometric authentication is available"
	case NoHardware:
		return "no biometric features available on this device"
	case HardwareUnavailable:
		return "biometric features are currently unavailable"
	case NotEnrolled:
		return "no biometric credentials are enrolled, enroll a fingerprint first"
	default:
		return "biometric readiness could not be determined"
	}
}

// Readiness is the raw code a platform reports about its biometric readiness.
// Values follow the numbering of the host platform's biometric manager.
type Readiness int

const (
	ReadinessUnsupported            Readiness = -2
	ReadinessStatusUnknown          Readiness = -1
	ReadinessSuccess                Readiness = 0
	ReadinessHardwareUnavailable    Readiness = 1
	ReadinessNoneEnrolled           Readiness = 11
	ReadinessNoHardware             Readiness = 12
	ReadinessSecurityUpdateRequired Readiness = 15
)

// Classify maps a readiness code to a Status. Codes that are not explicitly
// recognized are Unknown, never Usable.
func Classify(r Readiness) Status {
	switch r {
	case ReadinessSuccess:
		return Usable
	case ReadinessNoHardware:
		return NoHardware
	case ReadinessHardwareUnavailable:
		return HardwareUnavailable
	case ReadinessNoneEnrolled:
		return NotEnrolled
	default:
		return Unknown
	}
}
