package ctaphid

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"sync"
)

// KeepaliveFunc observes CTAPHID_KEEPALIVE statuses, e.g. to tell the user to touch the sensor.
type KeepaliveFunc func(KeepaliveStatus)

// Channel is an allocated CTAPHID channel on an open device.
// Transactions on one Channel are serialized.
type Channel struct {
	dev  io.ReadWriter
	cid  ChannelID
	info *InitResponse

	mu          sync.Mutex
	wmu         sync.Mutex
	onKeepalive KeepaliveFunc
}

// Open allocates a new channel by sending CTAPHID_INIT with nonce on the broadcast channel.
func Open(dev io.ReadWriter, nonce []byte) (*Channel, error) {
	c := &Channel{dev: dev, cid: BROADCAST_CID}

	resp, err := c.roundTrip(CTAPHID_INIT, nonce)
	if err != nil {
		return nil, err
	}
	if len(resp.Payload) < 17 {
		return nil, ErrInvalidResponseMessage
	}
	if subtle.ConstantTimeCompare(resp.Payload[:8], nonce) != 1 {
		return nil, ErrNonceMismatch
	}

	c.info = &InitResponse{
		Nonce:              resp.Payload[:8],
		CID:                ChannelID(resp.Payload[8:12]),
		ProtocolVersion:    resp.Payload[12],
		MajorDeviceVersion: resp.Payload[13],
		MinorDeviceVersion: resp.Payload[14],
		BuildDeviceVersion: resp.Payload[15],
		CapabilityFlags:    CapabilityFlag(resp.Payload[16]),
	}
	c.cid = c.info.CID

	return c, nil
}

func (c *Channel) CID() ChannelID {
	return c.cid
}

func (c *Channel) Init() *InitResponse {
	return c.info
}

// OnKeepalive sets the observer for keepalive statuses of following transactions.
func (c *Channel) OnKeepalive(fn KeepaliveFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onKeepalive = fn
}

// CBOR sends a CTAP2 request (command byte followed by CBOR parameters) and returns
// the response parameters. If ctx is done before the authenticator answers,
// CTAPHID_CANCEL is sent and the authenticator's answer to it is returned,
// usually a *CTAPError with CTAP2_ERR_KEEPALIVE_CANCEL.
func (c *Channel) CBOR(ctx context.Context, request []byte) ([]byte, error) {
	if len(request) < 1 {
		return nil, errors.New("ctaphid: empty CBOR request")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := c.write(&Message{CID: c.cid, Command: CTAPHID_CBOR, Payload: request}); err != nil {
		return nil, err
	}

	type result struct {
		resp *Message
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := c.await(CTAPHID_CBOR)
		done <- result{resp, err}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		if err := c.Cancel(); err != nil {
			r = <-done
			return nil, errors.Join(err, r.err)
		}
		r = <-done
	}
	if r.err != nil {
		return nil, r.err
	}

	if len(r.resp.Payload) < 1 {
		return nil, ErrInvalidResponseMessage
	}
	if code := StatusCode(r.resp.Payload[0]); code != CTAP2_OK {
		return nil, &CTAPError{Command: request[0], StatusCode: code}
	}

	return r.resp.Payload[1:], nil
}

// Ping echoes data through the authenticator.
func (c *Channel) Ping(data []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.roundTrip(CTAPHID_PING, data)
	if err != nil {
		return nil, err
	}

	return resp.Payload, nil
}

// Cancel aborts the pending CBOR transaction on this channel. It does not wait for an answer.
func (c *Channel) Cancel() error {
	return c.write(&Message{CID: c.cid, Command: CTAPHID_CANCEL})
}

func (c *Channel) roundTrip(cmd Command, payload []byte) (*Message, error) {
	if err := c.write(&Message{CID: c.cid, Command: cmd, Payload: payload}); err != nil {
		return nil, err
	}

	return c.await(cmd)
}

func (c *Channel) write(m *Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	_, err := m.WriteTo(c.dev)
	return err
}

// await reads messages until the answer to cmd arrives on this channel.
func (c *Channel) await(cmd Command) (*Message, error) {
	for {
		resp := new(Message)
		if _, err := resp.ReadFrom(c.dev); err != nil {
			return nil, err
		}

		if resp.CID != c.cid {
			continue
		}

		switch resp.Command {
		case cmd:
			return resp, nil
		case CTAPHID_KEEPALIVE:
			if c.onKeepalive != nil && len(resp.Payload) > 0 {
				c.onKeepalive(KeepaliveStatus(resp.Payload[0]))
			}
		case CTAPHID_ERROR:
			if len(resp.Payload) < 1 {
				return nil, ErrInvalidResponseMessage
			}
			return nil, &HIDError{Code: resp.Payload[0]}
		default:
			return nil, ErrUnexpectedCommand
		}
	}
}
