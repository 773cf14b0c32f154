// Package ctaphidtest provides an in-memory HID device that speaks CTAPHID framing.
package ctaphidtest

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/go-ctap/uvprompt/pkg/ctaphid"
)

// Handler answers one complete request message with zero or more messages.
type Handler func(req *ctaphid.Message) []*ctaphid.Message

// Device reassembles written reports into messages, hands them to Handler and
// serves the answers to Read one report at a time.
type Device struct {
	handler Handler

	mu       sync.Mutex
	buf      bytes.Buffer
	requests []*ctaphid.Message
	closed   bool

	reports chan []byte
	done    chan struct{}
}

func NewDevice(h Handler) *Device {
	return &Device{
		handler: h,
		reports: make(chan []byte, 1024),
		done:    make(chan struct{}),
	}
}

// Write accepts one report prefixed with the report ID.
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, io.ErrClosedPipe
	}
	if len(p) != 65 {
		return 0, errors.New("ctaphidtest: report must be 65 bytes")
	}
	d.buf.Write(p[1:])

	req := new(ctaphid.Message)
	if _, err := req.ReadFrom(bytes.NewReader(d.buf.Bytes())); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			// Wait for more continuation packets.
			return len(p), nil
		}
		return 0, err
	}
	d.buf.Reset()
	d.requests = append(d.requests, req)

	for _, resp := range d.handler(req) {
		d.enqueue(resp)
	}

	return len(p), nil
}

// Read returns the next report without the report ID, blocking until one is available.
func (d *Device) Read(p []byte) (int, error) {
	select {
	case r := <-d.reports:
		return copy(p, r), nil
	case <-d.done:
		return 0, io.EOF
	}
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.closed {
		d.closed = true
		close(d.done)
	}
	return nil
}

// Push queues an unsolicited message, e.g. a keepalive.
func (d *Device) Push(m *ctaphid.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.enqueue(m)
}

// Requests returns every complete message written so far.
func (d *Device) Requests() []*ctaphid.Message {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]*ctaphid.Message(nil), d.requests...)
}

func (d *Device) enqueue(m *ctaphid.Message) {
	var out bytes.Buffer
	if _, err := m.WriteTo(&out); err != nil {
		panic(err)
	}

	raw := out.Bytes()
	for len(raw) >= 65 {
		d.reports <- append([]byte(nil), raw[1:65]...)
		raw = raw[65:]
	}
}

// CBOROK builds a successful CBOR answer on cid.
func CBOROK(cid ctaphid.ChannelID, data []byte) *ctaphid.Message {
	return &ctaphid.Message{
		CID:     cid,
		Command: ctaphid.CTAPHID_CBOR,
		Payload: append([]byte{byte(ctaphid.CTAP2_OK)}, data...),
	}
}

// CBORStatus builds a failed CBOR answer on cid.
func CBORStatus(cid ctaphid.ChannelID, code ctaphid.StatusCode) *ctaphid.Message {
	return &ctaphid.Message{
		CID:     cid,
		Command: ctaphid.CTAPHID_CBOR,
		Payload: []byte{byte(code)},
	}
}

// Keepalive builds a keepalive message on cid.
func Keepalive(cid ctaphid.ChannelID, status ctaphid.KeepaliveStatus) *ctaphid.Message {
	return &ctaphid.Message{
		CID:     cid,
		Command: ctaphid.CTAPHID_KEEPALIVE,
		Payload: []byte{byte(status)},
	}
}

// InitAnswer answers a CTAPHID_INIT request by allocating cid.
func InitAnswer(req *ctaphid.Message, cid ctaphid.ChannelID) *ctaphid.Message {
	payload := make([]byte, 0, 17)
	payload = append(payload, req.Payload...)
	payload = append(payload, cid[:]...)
	payload = append(payload, 2, 1, 0, 0, byte(ctaphid.CAPABILITY_CBOR|ctaphid.CAPABILITY_WINK))

	return &ctaphid.Message{
		CID:     req.CID,
		Command: ctaphid.CTAPHID_INIT,
		Payload: payload,
	}
}
