//go:build hid_cgo || darwin

package device

import (
	"errors"
	"io"
	"iter"

	ghid "github.com/go-ctap/hid"
	"github.com/sstallion/go-hid"
)

var errStopEnumeration = errors.New("device: stop enumeration")

func enumerateHID() iter.Seq2[*ghid.DeviceInfo, error] {
	return func(yield func(*ghid.DeviceInfo, error) bool) {
		if err := hid.Enumerate(hid.VendorIDAny, hid.ProductIDAny, func(info *hid.DeviceInfo) error {
			if !yield(&ghid.DeviceInfo{
				Path:         info.Path,
				VendorID:     info.VendorID,
				ProductID:    info.ProductID,
				SerialNbr:    info.SerialNbr,
				ReleaseNbr:   info.ReleaseNbr,
				MfrStr:       info.MfrStr,
				ProductStr:   info.ProductStr,
				UsagePage:    info.UsagePage,
				Usage:        info.Usage,
				InterfaceNbr: info.InterfaceNbr,
			}, nil) {
				return errStopEnumeration
			}
			return nil
		}); err != nil && !errors.Is(err, errStopEnumeration) {
			yield(nil, err)
		}
	}
}

func openHID(path string) (io.ReadWriteCloser, error) {
	return hid.OpenPath(path)
}

// Exit releases the hidapi library.
func Exit() error { return hid.Exit() }
