package ctaphid

// ChannelID represents CTAPHID channel ID.
type ChannelID [4]byte

// BROADCAST_CID is used to allocate a channel.
var BROADCAST_CID = ChannelID{0xff, 0xff, 0xff, 0xff}

// InitResponse represents CTAPHID_INIT (0x06) command response.
// https://fidoalliance.org/specs/fido-v2.2-ps-20250228/fido-client-to-authenticator-protocol-v2.2-ps-20250228.html#usb-hid-init
type InitResponse struct {
	Nonce              []byte
	CID                ChannelID
	ProtocolVersion    byte
	MajorDeviceVersion byte
	MinorDeviceVersion byte
	BuildDeviceVersion byte
	CapabilityFlags    CapabilityFlag
}

func (r *InitResponse) ImplementsWink() bool {
	return r.CapabilityFlags&CAPABILITY_WINK != 0
}

func (r *InitResponse) ImplementsCBOR() bool {
	return r.CapabilityFlags&CAPABILITY_CBOR != 0
}
