//go:build !windows

package device

import (
	"context"
	"io"
	"iter"

	ghid "github.com/go-ctap/hid"
)

type ctxKey int

// CtxKeyUseNamedPipe routes HID access through the hidproxy named pipe when set to true.
// Only Windows supports it.
const CtxKeyUseNamedPipe ctxKey = iota

func useNamedPipe(ctx context.Context) bool {
	v, ok := ctx.Value(CtxKeyUseNamedPipe).(bool)
	return ok && v
}

// Enumerate yields every HID device visible to the process.
func Enumerate(ctx context.Context) iter.Seq2[*ghid.DeviceInfo, error] {
	if useNamedPipe(ctx) {
		return func(yield func(*ghid.DeviceInfo, error) bool) {
			yield(nil, newErrorMessage(ErrNotSupported, "named pipe proxy is only available on Windows"))
		}
	}

	return enumerateHID()
}

func OpenPath(ctx context.Context, path string) (io.ReadWriteCloser, error) {
	if useNamedPipe(ctx) {
		return nil, newErrorMessage(ErrNotSupported, "named pipe proxy is only available on Windows")
	}

	return openHID(path)
}
