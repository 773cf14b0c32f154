// Package hidproxy implements the framing spoken over the named pipe of a
// privileged HID proxy: a command byte, a big-endian length and a CBOR body.
package hidproxy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/fxamacker/cbor/v2"
)

var encMode, _ = cbor.CTAP2EncOptions().EncMode()

const NamedPipePath = `\\.\pipe\ctaphid`

var ErrMessageTooLarge = errors.New("hidproxy: message data too large")

type Command byte

const (
	// CommandEnumerate asks for the list of HID devices, answered with CBOR []*hid.DeviceInfo.
	CommandEnumerate Command = iota + 1
	// CommandStart carries a device path. After it the pipe relays raw HID reports.
	CommandStart
)

type Message struct {
	Command Command
	Data    []byte
}

// ReadMessage reads one framed message from r.
func ReadMessage(r io.Reader) (*Message, error) {
	header := make([]byte, 3)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	data := make([]byte, binary.BigEndian.Uint16(header[1:]))
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("hidproxy: cannot read message data: %w", err)
	}

	return &Message{
		Command: Command(header[0]),
		Data:    data,
	}, nil
}

// NewMessage builds a message whose body is data encoded as CBOR. A nil data yields an empty body.
func NewMessage(cmd Command, data any) (*Message, error) {
	msg := &Message{
		Command: cmd,
	}

	if data != nil {
		b, err := encMode.Marshal(data)
		if err != nil {
			return nil, err
		}
		if len(b) > math.MaxUint16 {
			return nil, ErrMessageTooLarge
		}
		msg.Data = b
	}

	return msg, nil
}

// Decode unmarshals the CBOR body into v.
func (m *Message) Decode(v any) error {
	return cbor.Unmarshal(m.Data, v)
}

func (m *Message) WriteTo(w io.Writer) (int64, error) {
	if len(m.Data) > math.MaxUint16 {
		return 0, ErrMessageTooLarge
	}

	b := make([]byte, 3, 3+len(m.Data))
	b[0] = byte(m.Command)
	binary.BigEndian.PutUint16(b[1:], uint16(len(m.Data)))
	b = append(b, m.Data...)

	n, err := w.Write(b)
	return int64(n), err
}
