package ctaphid_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/go-ctap/uvprompt/pkg/ctaphid"
	"github.com/go-ctap/uvprompt/pkg/ctaphid/ctaphidtest"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testCID   = ctaphid.ChannelID{0x46, 0x2f, 0xef, 0x4d}
	testNonce = []byte{1, 2, 3, 4, 5, 6, 7, 8}
)

func TestMessage_SplitAndReassemble(t *testing.T) {
	payload := bytes.Repeat([]byte{0xa5}, 200)
	m := &ctaphid.Message{CID: testCID, Command: ctaphid.CTAPHID_CBOR, Payload: payload}

	buf := bytes.NewBuffer(nil)
	n, err := m.WriteTo(buf)
	require.NoError(t, err)

	// 57 bytes in the init packet, 59 in each of the three continuation packets.
	assert.Equal(t, int64(4*65), n)

	// Strip the report IDs the way the HID layer does before handing reports back.
	reports := lo.Chunk(buf.Bytes(), 65)
	stripped := bytes.NewBuffer(nil)
	for _, r := range reports {
		assert.Equal(t, byte(0), r[0])
		stripped.Write(r[1:])
	}

	got := new(ctaphid.Message)
	_, err = got.ReadFrom(stripped)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

// CTAPHID_INIT carrying testNonce on the broadcast channel, report ID included.
const initReportFixture = "AP////+GAAgBAgMEBQYHCAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA="

func TestMessage_InitFixture(t *testing.T) {
	want, err := base64.StdEncoding.DecodeString(initReportFixture)
	require.NoError(t, err)

	buf := bytes.NewBuffer(nil)
	m := &ctaphid.Message{CID: ctaphid.BROADCAST_CID, Command: ctaphid.CTAPHID_INIT, Payload: testNonce}
	_, err = m.WriteTo(buf)
	require.NoError(t, err)

	assert.Equal(t, want, buf.Bytes())
}

func TestMessage_TooLarge(t *testing.T) {
	m := &ctaphid.Message{CID: testCID, Command: ctaphid.CTAPHID_CBOR, Payload: make([]byte, 7610)}
	_, err := m.WriteTo(bytes.NewBuffer(nil))
	assert.ErrorIs(t, err, ctaphid.ErrMessageTooLarge)
}

func TestMessage_ReadFromRejectsBadSequence(t *testing.T) {
	m := &ctaphid.Message{CID: testCID, Command: ctaphid.CTAPHID_CBOR, Payload: make([]byte, 100)}
	buf := bytes.NewBuffer(nil)
	_, err := m.WriteTo(buf)
	require.NoError(t, err)

	raw := buf.Bytes()
	// Second report, sequence byte.
	raw[65+1+4] = 7

	stripped := bytes.NewBuffer(nil)
	for _, r := range lo.Chunk(raw, 65) {
		stripped.Write(r[1:])
	}

	_, err = new(ctaphid.Message).ReadFrom(stripped)
	assert.ErrorIs(t, err, ctaphid.ErrInvalidResponseMessage)
}

func openChannel(t *testing.T, cbor func(req *ctaphid.Message) []*ctaphid.Message) (*ctaphid.Channel, *ctaphidtest.Device) {
	t.Helper()

	dev := ctaphidtest.NewDevice(func(req *ctaphid.Message) []*ctaphid.Message {
		if req.Command == ctaphid.CTAPHID_INIT {
			return []*ctaphid.Message{ctaphidtest.InitAnswer(req, testCID)}
		}
		return cbor(req)
	})
	t.Cleanup(func() { _ = dev.Close() })

	ch, err := ctaphid.Open(dev, testNonce)
	require.NoError(t, err)

	return ch, dev
}

func TestOpen(t *testing.T) {
	ch, _ := openChannel(t, nil)

	assert.Equal(t, testCID, ch.CID())
	assert.True(t, ch.Init().ImplementsCBOR())
	assert.Equal(t, testNonce, ch.Init().Nonce)
}

func TestChannel_CBORWithKeepalive(t *testing.T) {
	ch, _ := openChannel(t, func(req *ctaphid.Message) []*ctaphid.Message {
		return []*ctaphid.Message{
			ctaphidtest.Keepalive(testCID, ctaphid.STATUS_PROCESSING),
			ctaphidtest.Keepalive(testCID, ctaphid.STATUS_UPNEEDED),
			ctaphidtest.CBOROK(testCID, []byte{0xa0}),
		}
	})

	var statuses []ctaphid.KeepaliveStatus
	ch.OnKeepalive(func(s ctaphid.KeepaliveStatus) {
		statuses = append(statuses, s)
	})

	resp, err := ch.CBOR(context.Background(), []byte{0x04})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa0}, resp)
	assert.Equal(t, []ctaphid.KeepaliveStatus{ctaphid.STATUS_PROCESSING, ctaphid.STATUS_UPNEEDED}, statuses)
}

func TestChannel_CBORStatusError(t *testing.T) {
	ch, _ := openChannel(t, func(req *ctaphid.Message) []*ctaphid.Message {
		return []*ctaphid.Message{ctaphidtest.CBORStatus(testCID, ctaphid.CTAP2_ERR_UV_INVALID)}
	})

	_, err := ch.CBOR(context.Background(), []byte{0x06, 0xa0})
	require.Error(t, err)

	code, ok := ctaphid.StatusOf(err)
	require.True(t, ok)
	assert.Equal(t, ctaphid.CTAP2_ERR_UV_INVALID, code)
	assert.Contains(t, err.Error(), "CTAP2_ERR_UV_INVALID")
}

func TestChannel_CBORCanceled(t *testing.T) {
	ch, dev := openChannel(t, func(req *ctaphid.Message) []*ctaphid.Message {
		switch req.Command {
		case ctaphid.CTAPHID_CANCEL:
			return []*ctaphid.Message{ctaphidtest.CBORStatus(testCID, ctaphid.CTAP2_ERR_KEEPALIVE_CANCEL)}
		default:
			// Waiting for the user to touch the sensor.
			return []*ctaphid.Message{ctaphidtest.Keepalive(testCID, ctaphid.STATUS_UPNEEDED)}
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := ch.CBOR(ctx, []byte{0x06, 0xa0})
	code, ok := ctaphid.StatusOf(err)
	require.True(t, ok, "unexpected error %v", err)
	assert.Equal(t, ctaphid.CTAP2_ERR_KEEPALIVE_CANCEL, code)

	reqs := dev.Requests()
	require.NotEmpty(t, reqs)
	assert.Equal(t, ctaphid.CTAPHID_CANCEL, reqs[len(reqs)-1].Command)
}

func TestChannel_HIDError(t *testing.T) {
	ch, _ := openChannel(t, func(req *ctaphid.Message) []*ctaphid.Message {
		return []*ctaphid.Message{{CID: testCID, Command: ctaphid.CTAPHID_ERROR, Payload: []byte{0x06}}}
	})

	_, err := ch.CBOR(context.Background(), []byte{0x04})
	var hidErr *ctaphid.HIDError
	require.ErrorAs(t, err, &hidErr)
	assert.Equal(t, byte(0x06), hidErr.Code)
}

func TestChannel_Ping(t *testing.T) {
	ch, _ := openChannel(t, func(req *ctaphid.Message) []*ctaphid.Message {
		return []*ctaphid.Message{{CID: req.CID, Command: ctaphid.CTAPHID_PING, Payload: req.Payload}}
	})

	pong, err := ch.Ping([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), pong)
}
