package device

import (
	"context"
	"io"
	"iter"

	"github.com/Microsoft/go-winio"
	"github.com/go-ctap/uvprompt/pkg/hidproxy"

	ghid "github.com/go-ctap/hid"
)

type ctxKey int

// CtxKeyUseNamedPipe routes HID access through the hidproxy named pipe when set to true.
// A privileged proxy is needed on Windows because unelevated processes cannot open FIDO devices.
const CtxKeyUseNamedPipe ctxKey = iota

func useNamedPipe(ctx context.Context) bool {
	v, ok := ctx.Value(CtxKeyUseNamedPipe).(bool)
	return ok && v
}

func Enumerate(ctx context.Context) iter.Seq2[*ghid.DeviceInfo, error] {
	if !useNamedPipe(ctx) {
		return enumerateHID()
	}

	return func(yield func(*ghid.DeviceInfo, error) bool) {
		pipe, err := winio.DialPipeContext(ctx, hidproxy.NamedPipePath)
		if err != nil {
			yield(nil, err)
			return
		}
		defer pipe.Close()

		msg, err := hidproxy.NewMessage(hidproxy.CommandEnumerate, nil)
		if err != nil {
			yield(nil, err)
			return
		}
		if _, err := msg.WriteTo(pipe); err != nil {
			yield(nil, err)
			return
		}

		msg, err = hidproxy.ReadMessage(pipe)
		if err != nil {
			yield(nil, err)
			return
		}

		var devInfos []*ghid.DeviceInfo
		if err := msg.Decode(&devInfos); err != nil {
			yield(nil, err)
			return
		}

		for _, info := range devInfos {
			if !yield(info, nil) {
				return
			}
		}
	}
}

func OpenPath(ctx context.Context, path string) (io.ReadWriteCloser, error) {
	if !useNamedPipe(ctx) {
		return openHID(path)
	}

	pipe, err := winio.DialPipeContext(ctx, hidproxy.NamedPipePath)
	if err != nil {
		return nil, err
	}

	msg, err := hidproxy.NewMessage(hidproxy.CommandStart, path)
	if err != nil {
		_ = pipe.Close()
		return nil, err
	}
	if _, err := msg.WriteTo(pipe); err != nil {
		_ = pipe.Close()
		return nil, err
	}

	return pipe, nil
}
