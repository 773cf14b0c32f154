// Package sugar finds FIDO authenticators and lets the user pick one by touch.
package sugar

import (
	"context"
	"errors"
	"sync"

	ghid "github.com/go-ctap/hid"
	"github.com/go-ctap/uvprompt/pkg/device"
	"github.com/go-ctap/uvprompt/pkg/options"
	"github.com/samber/lo"
	"github.com/samber/mo"
)

var (
	ErrNoDevices          = errors.New("sugar: no FIDO devices found")
	ErrNoSupportedDevices = errors.New("sugar: no supported devices found")
)

const (
	fidoUsagePage = 0xf1d0
	fidoUsage     = 0x01
)

func EnumerateFIDODevices(opts ...options.Option) ([]*ghid.DeviceInfo, error) {
	oo := options.NewOptions(opts...)

	devInfos := make([]*ghid.DeviceInfo, 0)
	ctx := context.WithValue(oo.Context, device.CtxKeyUseNamedPipe, oo.UseNamedPipe)
	for devInfo, err := range device.Enumerate(ctx) {
		if err != nil {
			return nil, err
		}

		if devInfo.UsagePage != fidoUsagePage || devInfo.Usage != fidoUsage {
			continue
		}

		devInfos = append(devInfos, devInfo)
	}

	return devInfos, nil
}

// SelectDevice opens the only connected authenticator, or asks the user to touch
// one when several are connected. Touch selection needs FIDO 2.1 (including PRE).
func SelectDevice(opts ...options.Option) (*device.Device, error) {
	oo := options.NewOptions(opts...)

	paths, err := resolvePaths(oo, opts...)
	if err != nil {
		return nil, err
	}

	switch len(paths) {
	case 0:
		return nil, ErrNoDevices
	case 1:
		return device.New(paths[0], opts...)
	}

	devices := make([]*device.Device, 0, len(paths))
	for _, p := range paths {
		dev, err := device.New(p, opts...)
		if err != nil {
			for _, d := range devices {
				_ = d.Close()
			}
			return nil, err
		}

		if !supportsSelection(dev) {
			oo.Logger.Debug("skipping device without authenticatorSelection", "path", p)
			_ = dev.Close()
			continue
		}

		devices = append(devices, dev)
	}

	return Select(oo.Context, devices)
}

// OpenDevices opens every connected authenticator without asking the user for anything.
// Devices that fail to open are skipped; the last error is returned only when none opened.
func OpenDevices(opts ...options.Option) ([]*device.Device, error) {
	oo := options.NewOptions(opts...)

	paths, err := resolvePaths(oo, opts...)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, ErrNoDevices
	}

	var lastErr error
	devices := make([]*device.Device, 0, len(paths))
	for _, p := range paths {
		dev, err := device.New(p, opts...)
		if err != nil {
			oo.Logger.Debug("cannot open device", "path", p, "err", err)
			lastErr = err
			continue
		}
		devices = append(devices, dev)
	}

	if len(devices) == 0 {
		return nil, lastErr
	}

	return devices, nil
}

func resolvePaths(oo *options.Options, opts ...options.Option) ([]string, error) {
	if oo.Paths != nil {
		return oo.Paths, nil
	}

	devInfos, err := EnumerateFIDODevices(opts...)
	if err != nil {
		return nil, err
	}

	return lo.Map(devInfos, func(devInfo *ghid.DeviceInfo, _ int) string {
		return devInfo.Path
	}), nil
}

func supportsSelection(dev *device.Device) bool {
	return lo.ContainsBy(dev.Info().Versions, func(v string) bool {
		return v == "FIDO_2_1" || v == "FIDO_2_1_PRE"
	})
}

// Select blocks until the user touches one of devices, returns it and closes the rest.
func Select(ctx context.Context, devices []*device.Device) (*device.Device, error) {
	if len(devices) == 0 {
		return nil, ErrNoSupportedDevices
	}

	// Either the first touched device or the first error.
	selection := make(chan mo.Either[*device.Device, error], 1)

	var (
		wg   sync.WaitGroup
		once sync.Once
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, dev := range devices {
		wg.Add(1)
		go func(dev *device.Device) {
			defer wg.Done()

			err := dev.Selection(ctx)
			if errors.Is(ctx.Err(), context.Canceled) && err != nil {
				return
			}

			once.Do(func() {
				cancel()
				if err != nil {
					selection <- mo.Right[*device.Device, error](err)
					return
				}
				selection <- mo.Left[*device.Device, error](dev)
			})
		}(dev)
	}

	wg.Wait()

	var sel mo.Either[*device.Device, error]
	select {
	case sel = <-selection:
	default:
		sel = mo.Right[*device.Device, error](context.Cause(ctx))
	}

	selected, ok := sel.Left()
	for _, dev := range devices {
		if ok && dev == selected {
			continue
		}
		_ = dev.Close()
	}

	if err, isErr := sel.Right(); isErr {
		return nil, err
	}

	return selected, nil
}
