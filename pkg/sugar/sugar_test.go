package sugar_test

import (
	"context"
	"runtime"
	"testing"

	"github.com/go-ctap/uvprompt/pkg/ctap/ctaptest"
	"github.com/go-ctap/uvprompt/pkg/ctaphid"
	"github.com/go-ctap/uvprompt/pkg/ctaphid/ctaphidtest"
	"github.com/go-ctap/uvprompt/pkg/device"
	"github.com/go-ctap/uvprompt/pkg/options"
	"github.com/go-ctap/uvprompt/pkg/sugar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDevice(t *testing.T, path string) *device.Device {
	t.Helper()

	hid := ctaphidtest.NewDevice(ctaptest.New().Handler(ctaphid.ChannelID{0, 0, 0, 1}))
	dev, err := device.Open(context.Background(), hid, path)
	require.NoError(t, err)

	return dev
}

func TestSelect_ClosesOthers(t *testing.T) {
	a, b := openDevice(t, "a"), openDevice(t, "b")

	selected, err := sugar.Select(context.Background(), []*device.Device{a, b})
	require.NoError(t, err)
	defer selected.Close()

	other := a
	if selected == a {
		other = b
	}

	assert.NoError(t, selected.Selection(context.Background()))
	assert.Error(t, other.Selection(context.Background()), "unselected device must be closed")
}

func TestSelect_NoDevices(t *testing.T) {
	_, err := sugar.Select(context.Background(), nil)
	assert.ErrorIs(t, err, sugar.ErrNoSupportedDevices)
}

func TestSelect_Canceled(t *testing.T) {
	dev := openDevice(t, "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sugar.Select(ctx, []*device.Device{dev})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSelectDevice_EmptyPaths(t *testing.T) {
	_, err := sugar.SelectDevice(options.WithPaths([]string{}...))
	assert.ErrorIs(t, err, sugar.ErrNoDevices)
}

func TestOpenDevices_EmptyPaths(t *testing.T) {
	_, err := sugar.OpenDevices(options.WithPaths([]string{}...))
	assert.ErrorIs(t, err, sugar.ErrNoDevices)
}

func TestOpenDevices_NoneOpened(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("the named pipe proxy is reachable on Windows")
	}

	_, err := sugar.OpenDevices(options.WithUseNamedPipes(), options.WithPaths("a", "b"))
	assert.ErrorIs(t, err, device.ErrNotSupported)
}
