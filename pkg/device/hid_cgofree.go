//go:build !hid_cgo && !darwin

package device

import (
	"io"
	"iter"

	ghid "github.com/go-ctap/hid"
)

func enumerateHID() iter.Seq2[*ghid.DeviceInfo, error] {
	return ghid.Enumerate()
}

func openHID(path string) (io.ReadWriteCloser, error) {
	return ghid.OpenPath(path)
}

// Exit releases process-wide HID resources. The cgo-free backend holds none.
func Exit() error { return nil }
