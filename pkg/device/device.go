// Package device drives one CTAP2 authenticator connected over HID.
package device

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/go-ctap/uvprompt/pkg/ctap"
	"github.com/go-ctap/uvprompt/pkg/ctaphid"
	"github.com/go-ctap/uvprompt/pkg/options"
	"github.com/go-ctap/uvprompt/pkg/pinuv"
)

// Device represents a hardware authenticator reachable over CTAPHID.
type Device struct {
	Path string

	device     io.ReadWriteCloser
	channel    *ctaphid.Channel
	ctapClient *ctap.Client
	logger     *slog.Logger

	mu   sync.RWMutex
	info *ctap.GetInfoResponse
}

// New opens the HID device at path, allocates a channel and reads the authenticator info.
func New(path string, opts ...options.Option) (*Device, error) {
	oo := options.NewOptions(opts...)

	ctx := context.WithValue(oo.Context, CtxKeyUseNamedPipe, oo.UseNamedPipe)
	dev, err := OpenPath(ctx, path)
	if err != nil {
		return nil, err
	}

	d, err := Open(ctx, dev, path, opts...)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}

	return d, nil
}

// Open wraps an already opened HID device. The Device takes ownership of dev.
func Open(ctx context.Context, dev io.ReadWriteCloser, path string, opts ...options.Option) (*Device, error) {
	oo := options.NewOptions(opts...)

	nonce := make([]byte, 8)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	ch, err := ctaphid.Open(dev, nonce)
	if err != nil {
		return nil, fmt.Errorf("cannot allocate CTAPHID channel: %w", err)
	}
	if !ch.Init().ImplementsCBOR() {
		return nil, newErrorMessage(ErrNotSupported, "device doesn't implement CTAPHID_CBOR")
	}

	d := &Device{
		Path:       path,
		device:     dev,
		channel:    ch,
		ctapClient: ctap.NewClient(opts...),
		logger:     oo.Logger.With("path", path),
	}

	if err := d.RefreshInfo(ctx); err != nil {
		return nil, err
	}

	return d, nil
}

// Close closes the underlying HID device.
func (d *Device) Close() error {
	return d.device.Close()
}

// Info returns the metadata and capabilities read by the last getInfo call.
func (d *Device) Info() *ctap.GetInfoResponse {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.info
}

// RefreshInfo reads getInfo again, e.g. after the user enrolled a fingerprint.
func (d *Device) RefreshInfo(ctx context.Context) error {
	info, err := d.ctapClient.GetInfo(ctx, d.channel)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.info = info
	d.mu.Unlock()

	d.logger.Debug("authenticator info", "versions", info.Versions, "options", info.Options)
	return nil
}

// Ping sends data to the device and verifies the echo. It is a cheap way to
// tell whether an open device is still connected.
func (d *Device) Ping(data []byte) error {
	pong, err := d.channel.Ping(data)
	if err != nil {
		return err
	}

	if !bytes.Equal(data, pong) {
		return ErrPingPongMismatch
	}

	return nil
}

// UVState describes the authenticator's built-in user verification.
type UVState int

const (
	UVUnsupported UVState = iota
	UVNotConfigured
	UVConfigured
)

func (s UVState) String() string {
	switch s {
	case UVNotConfigured:
		return "not configured"
	case UVConfigured:
		return "configured"
	default:
		return "unsupported"
	}
}

// UVCapability reports whether built-in user verification exists and has
// something enrolled, according to the cached info.
func (d *Device) UVCapability() UVState {
	uv, ok := d.option(ctap.OptionUserVerification)
	if !ok {
		return UVUnsupported
	}

	// bioEnroll=false means a sensor without enrolled templates.
	if bio, ok := d.option(ctap.OptionBioEnroll); ok && !bio {
		return UVNotConfigured
	}
	if !uv {
		return UVNotConfigured
	}

	return UVConfigured
}

// OnKeepalive observes keepalive statuses while the authenticator waits for the user.
func (d *Device) OnKeepalive(fn ctaphid.KeepaliveFunc) {
	d.channel.OnKeepalive(fn)
}

func (d *Device) option(opt ctap.Option) (bool, bool) {
	return d.Info().Option(opt)
}

func (d *Device) protocol() (pinuv.Protocol, error) {
	v, err := pinuv.Preferred(d.Info().PinUvAuthProtocols)
	if err != nil {
		return nil, newErrorMessage(ErrNoProtocol, err.Error())
	}

	return pinuv.New(v)
}

// PINRetries retrieves the number of PIN retries remaining, and whether a power cycle
// is required before the PIN can be tried again.
func (d *Device) PINRetries(ctx context.Context) (uint, bool, error) {
	clientPin, ok := d.option(ctap.OptionClientPIN)
	if !ok {
		return 0, false, newErrorMessage(ErrNotSupported, "device doesn't support clientPin option")
	}
	if !clientPin {
		return 0, false, newErrorMessage(ErrPinNotSet, "please set PIN first")
	}

	protocol, err := d.protocol()
	if err != nil {
		return 0, false, err
	}

	return d.ctapClient.GetPINRetries(ctx, d.channel, protocol.Version())
}

// UVRetries retrieves the number of remaining built-in user verification attempts.
func (d *Device) UVRetries(ctx context.Context) (uint, error) {
	uv, ok := d.option(ctap.OptionUserVerification)
	if !ok {
		return 0, newErrorMessage(ErrNotSupported, "device doesn't support user verification")
	}
	if !uv {
		return 0, newErrorMessage(ErrUvNotConfigured, "please configure UV first (e.g. enroll biometry)")
	}

	return d.ctapClient.GetUVRetries(ctx, d.channel)
}

// VerifyUser runs the authenticator's built-in user verification, e.g. a fingerprint
// match, and returns a pinUvAuthToken scoped to rpID on success.
// It blocks until the user acts, the authenticator times out or ctx is done.
func (d *Device) VerifyUser(ctx context.Context, permission ctap.Permission, rpID string) ([]byte, error) {
	token, ok := d.option(ctap.OptionPinUvAuthToken)
	if !ok || !token {
		return nil, newErrorMessage(ErrNotSupported, "device doesn't support pinUvAuthToken")
	}

	uv, ok := d.option(ctap.OptionUserVerification)
	if !ok {
		return nil, newErrorMessage(ErrNotSupported, "device doesn't support user verification")
	}
	if !uv {
		return nil, newErrorMessage(ErrUvNotConfigured, "please configure UV first (e.g. enroll biometry)")
	}

	protocol, err := d.protocol()
	if err != nil {
		return nil, err
	}

	keyAgreement, err := d.ctapClient.GetKeyAgreement(ctx, d.channel, protocol.Version())
	if err != nil {
		return nil, err
	}

	return d.ctapClient.GetPinUvAuthTokenUsingUvWithPermissions(ctx, d.channel, protocol, keyAgreement, permission, rpID)
}

// VerifyPIN verifies pin and returns a pinUvAuthToken. Authenticators without
// pinUvAuthToken support get the legacy getPinToken request.
func (d *Device) VerifyPIN(ctx context.Context, pin string, permission ctap.Permission, rpID string) ([]byte, error) {
	clientPIN, ok := d.option(ctap.OptionClientPIN)
	if !ok {
		return nil, newErrorMessage(ErrNotSupported, "device doesn't support clientPin option")
	}
	if !clientPIN {
		return nil, newErrorMessage(ErrPinNotSet, "please set PIN first")
	}

	protocol, err := d.protocol()
	if err != nil {
		return nil, err
	}

	keyAgreement, err := d.ctapClient.GetKeyAgreement(ctx, d.channel, protocol.Version())
	if err != nil {
		return nil, err
	}

	if token, ok := d.option(ctap.OptionPinUvAuthToken); !ok || !token {
		return d.ctapClient.GetPinToken(ctx, d.channel, protocol, keyAgreement, pin)
	}

	return d.ctapClient.GetPinUvAuthTokenUsingPinWithPermissions(ctx, d.channel, protocol, keyAgreement, pin, permission, rpID)
}

// Selection blocks until the user touches the authenticator. It returns ctx.Err()
// if ctx was done first.
func (d *Device) Selection(ctx context.Context) error {
	if err := d.ctapClient.Selection(ctx, d.channel); err != nil {
		return err
	}

	return ctx.Err()
}
