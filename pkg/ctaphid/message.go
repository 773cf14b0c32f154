package ctaphid

import (
	"encoding/binary"
	"io"

	"github.com/samber/lo"
)

// Message is a CTAPHID command with its payload. On the wire it is split into
// one init packet and as many continuation packets as needed, each one HID report.
type Message struct {
	CID     ChannelID
	Command Command
	Payload []byte
}

// WriteTo writes the message as a sequence of HID reports. Every report is
// prefixed with report ID 0 and written with a single Write call.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	if len(m.Payload) > maxPayloadSize {
		return 0, ErrMessageTooLarge
	}

	var total int64
	report := make([]byte, 1+reportSize)
	packet := report[1:]

	copy(packet[0:4], m.CID[:])
	packet[4] = byte(m.Command) | initPacketBit
	binary.BigEndian.PutUint16(packet[5:7], uint16(len(m.Payload)))
	first := lo.Slice(m.Payload, 0, reportSize-initHeaderSize)
	copy(packet[initHeaderSize:], first)

	n, err := w.Write(report)
	total += int64(n)
	if err != nil {
		return total, err
	}

	for seq, chunk := range lo.Chunk(m.Payload[len(first):], reportSize-contHeaderSize) {
		clear(report)
		copy(packet[0:4], m.CID[:])
		packet[4] = byte(seq)
		copy(packet[contHeaderSize:], chunk)

		n, err := w.Write(report)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

// ReadFrom reads one message, report by report, and reassembles its payload.
func (m *Message) ReadFrom(r io.Reader) (int64, error) {
	var total int64
	report := make([]byte, reportSize)

	n, err := io.ReadFull(r, report)
	total += int64(n)
	if err != nil {
		return total, err
	}

	if report[4]&initPacketBit == 0 {
		return total, ErrInvalidResponseMessage
	}

	m.CID = ChannelID(report[0:4])
	m.Command = Command(report[4] &^ initPacketBit)

	size := int(binary.BigEndian.Uint16(report[5:7]))
	if size > maxPayloadSize {
		return total, ErrMessageTooLarge
	}

	m.Payload = make([]byte, 0, size)
	m.Payload = append(m.Payload, report[initHeaderSize:initHeaderSize+min(size, reportSize-initHeaderSize)]...)

	for seq := byte(0); len(m.Payload) < size; seq++ {
		n, err := io.ReadFull(r, report)
		total += int64(n)
		if err != nil {
			return total, err
		}

		if ChannelID(report[0:4]) != m.CID || report[4] != seq {
			return total, ErrInvalidResponseMessage
		}

		remaining := size - len(m.Payload)
		m.Payload = append(m.Payload, report[contHeaderSize:contHeaderSize+min(remaining, reportSize-contHeaderSize)]...)
	}

	return total, nil
}
