//go:build !windows

package device_test

import (
	"context"
	"testing"

	"github.com/go-ctap/uvprompt/pkg/device"
	"github.com/stretchr/testify/assert"
)

func TestOpenPath_NamedPipeUnsupported(t *testing.T) {
	ctx := context.WithValue(context.Background(), device.CtxKeyUseNamedPipe, true)

	_, err := device.OpenPath(ctx, "/dev/hidraw0")
	assert.ErrorIs(t, err, device.ErrNotSupported)

	for _, err := range device.Enumerate(ctx) {
		assert.ErrorIs(t, err, device.ErrNotSupported)
	}
}
