package hidproxy

import (
	"bytes"
	"testing"

	ghid "github.com/go-ctap/hid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_StartCarriesPath(t *testing.T) {
	msg, err := NewMessage(CommandStart, `\\?\hid#vid_1050&pid_0407`)
	require.NoError(t, err)

	buf := bytes.NewBuffer(nil)
	n, err := msg.WriteTo(buf)
	require.NoError(t, err)
	assert.Equal(t, int64(3+len(msg.Data)), n)

	got, err := ReadMessage(buf)
	require.NoError(t, err)
	assert.Equal(t, CommandStart, got.Command)

	var path string
	require.NoError(t, got.Decode(&path))
	assert.Equal(t, `\\?\hid#vid_1050&pid_0407`, path)
}

func TestMessage_EnumerateAnswer(t *testing.T) {
	infos := []*ghid.DeviceInfo{{Path: "a", UsagePage: 0xf1d0, Usage: 0x01}}
	msg, err := NewMessage(CommandEnumerate, infos)
	require.NoError(t, err)

	buf := bytes.NewBuffer(nil)
	_, err = msg.WriteTo(buf)
	require.NoError(t, err)

	got, err := ReadMessage(buf)
	require.NoError(t, err)

	var decoded []*ghid.DeviceInfo
	require.NoError(t, got.Decode(&decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "a", decoded[0].Path)
	assert.EqualValues(t, 0xf1d0, decoded[0].UsagePage)
}

func TestReadMessage_Truncated(t *testing.T) {
	_, err := ReadMessage(bytes.NewReader([]byte{byte(CommandStart), 0x00, 0x10, 0x01}))
	assert.Error(t, err)
}

func TestMessage_EmptyBody(t *testing.T) {
	msg, err := NewMessage(CommandEnumerate, nil)
	require.NoError(t, err)

	buf := bytes.NewBuffer(nil)
	_, err = msg.WriteTo(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{byte(CommandEnumerate), 0, 0}, buf.Bytes())
}
