// Package ctap implements the subset of CTAP2 authenticator commands needed to
// verify the user: getInfo, clientPIN and selection.
package ctap

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-ctap/uvprompt/pkg/ctaphid"
	"github.com/go-ctap/uvprompt/pkg/options"
	"github.com/go-ctap/uvprompt/pkg/pinuv"
	"github.com/ldclabs/cose/key"
)

// Transport carries one CTAP2 request to the authenticator. *ctaphid.Channel implements it.
type Transport interface {
	CBOR(ctx context.Context, request []byte) ([]byte, error)
}

type Client struct {
	logger  *slog.Logger
	encMode cbor.EncMode
}

func NewClient(opts ...options.Option) *Client {
	oo := options.NewOptions(opts...)

	return &Client{
		logger:  oo.Logger,
		encMode: oo.EncMode,
	}
}

func (cl *Client) GetInfo(ctx context.Context, t Transport) (*GetInfoResponse, error) {
	respRaw, err := t.CBOR(ctx, []byte{byte(AuthenticatorGetInfo)})
	if err != nil {
		return nil, err
	}
	cl.logger.Debug("getInfo CBOR response", "hex", hex.EncodeToString(respRaw))

	var resp *GetInfoResponse
	if err := cbor.Unmarshal(respRaw, &resp); err != nil {
		return nil, fmt.Errorf("cannot unmarshal getInfo CBOR response: %w", err)
	}

	return resp, nil
}

func (cl *Client) clientPIN(ctx context.Context, t Transport, req *ClientPINRequest) (*ClientPINResponse, error) {
	b, err := cl.encMode.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("cannot marshal %s CBOR request: %w", req.SubCommand, err)
	}
	cl.logger.Debug(req.SubCommand.String()+" CBOR request", "hex", hex.EncodeToString(b))

	respRaw, err := t.CBOR(ctx, slices.Concat([]byte{byte(AuthenticatorClientPIN)}, b))
	if err != nil {
		return nil, err
	}
	cl.logger.Debug(req.SubCommand.String()+" CBOR response", "hex", hex.EncodeToString(respRaw))

	resp := new(ClientPINResponse)
	if len(respRaw) == 0 {
		return resp, nil
	}
	if err := cbor.Unmarshal(respRaw, resp); err != nil {
		return nil, fmt.Errorf("cannot unmarshal %s CBOR response: %w", req.SubCommand, err)
	}

	return resp, nil
}

func (cl *Client) GetKeyAgreement(ctx context.Context, t Transport, v pinuv.Version) (key.Key, error) {
	resp, err := cl.clientPIN(ctx, t, &ClientPINRequest{
		PinUvAuthProtocol: v,
		SubCommand:        ClientPINSubCommandGetKeyAgreement,
	})
	if err != nil {
		return nil, fmt.Errorf("keyAgreement CBOR request failed: %w", err)
	}
	if resp.KeyAgreement == nil {
		return nil, errors.New("ctap: authenticator returned no key agreement key")
	}

	return resp.KeyAgreement, nil
}

// GetPINRetries returns the remaining PIN attempts and whether a power cycle is
// required before the next one.
func (cl *Client) GetPINRetries(ctx context.Context, t Transport, v pinuv.Version) (uint, bool, error) {
	resp, err := cl.clientPIN(ctx, t, &ClientPINRequest{
		// While this parameter is unnecessary, SoloKeys Solo 2 requires it.
		PinUvAuthProtocol: v,
		SubCommand:        ClientPINSubCommandGetPINRetries,
	})
	if err != nil {
		return 0, false, err
	}

	return resp.PinRetries, resp.PowerCycleState, nil
}

// GetUVRetries returns the remaining built-in user verification attempts.
func (cl *Client) GetUVRetries(ctx context.Context, t Transport) (uint, error) {
	resp, err := cl.clientPIN(ctx, t, &ClientPINRequest{
		SubCommand: ClientPINSubCommandGetUVRetries,
	})
	if err != nil {
		return 0, err
	}

	return resp.UvRetries, nil
}

// GetPinToken gets a pinUvAuthToken with the legacy subcommand, for authenticators
// without pinUvAuthToken support.
func (cl *Client) GetPinToken(
	ctx context.Context,
	t Transport,
	protocol pinuv.Protocol,
	keyAgreement key.Key,
	pin string,
) ([]byte, error) {
	platformKey, sharedSecret, err := protocol.Encapsulate(keyAgreement)
	if err != nil {
		return nil, err
	}

	pinHashEnc, err := encryptPINHash(protocol, sharedSecret, pin)
	if err != nil {
		return nil, err
	}

	resp, err := cl.clientPIN(ctx, t, &ClientPINRequest{
		PinUvAuthProtocol: protocol.Version(),
		SubCommand:        ClientPINSubCommandGetPinToken,
		KeyAgreement:      platformKey,
		PinHashEnc:        pinHashEnc,
	})
	if err != nil {
		return nil, err
	}

	return protocol.Decrypt(sharedSecret, resp.PinUvAuthToken)
}

// GetPinUvAuthTokenUsingUvWithPermissions asks the authenticator to verify the user
// with its built-in method, e.g. a fingerprint, and returns the resulting token.
// It blocks until the user acts, the authenticator gives up or ctx is done.
func (cl *Client) GetPinUvAuthTokenUsingUvWithPermissions(
	ctx context.Context,
	t Transport,
	protocol pinuv.Protocol,
	keyAgreement key.Key,
	permissions Permission,
	rpID string,
) ([]byte, error) {
	platformKey, sharedSecret, err := protocol.Encapsulate(keyAgreement)
	if err != nil {
		return nil, err
	}

	resp, err := cl.clientPIN(ctx, t, &ClientPINRequest{
		PinUvAuthProtocol: protocol.Version(),
		SubCommand:        ClientPINSubCommandGetPinUvAuthTokenUsingUvWithPermissions,
		KeyAgreement:      platformKey,
		Permissions:       permissions,
		RPID:              rpID,
	})
	if err != nil {
		return nil, err
	}

	return protocol.Decrypt(sharedSecret, resp.PinUvAuthToken)
}

// GetPinUvAuthTokenUsingPinWithPermissions verifies pin and returns the resulting token.
func (cl *Client) GetPinUvAuthTokenUsingPinWithPermissions(
	ctx context.Context,
	t Transport,
	protocol pinuv.Protocol,
	keyAgreement key.Key,
	pin string,
	permissions Permission,
	rpID string,
) ([]byte, error) {
	platformKey, sharedSecret, err := protocol.Encapsulate(keyAgreement)
	if err != nil {
		return nil, err
	}

	pinHashEnc, err := encryptPINHash(protocol, sharedSecret, pin)
	if err != nil {
		return nil, err
	}

	resp, err := cl.clientPIN(ctx, t, &ClientPINRequest{
		PinUvAuthProtocol: protocol.Version(),
		SubCommand:        ClientPINSubCommandGetPinUvAuthTokenUsingPinWithPermissions,
		KeyAgreement:      platformKey,
		PinHashEnc:        pinHashEnc,
		Permissions:       permissions,
		RPID:              rpID,
	})
	if err != nil {
		return nil, err
	}

	return protocol.Decrypt(sharedSecret, resp.PinUvAuthToken)
}

// Selection blocks until the user touches the authenticator or the request is canceled.
func (cl *Client) Selection(ctx context.Context, t Transport) error {
	if _, err := t.CBOR(ctx, []byte{byte(AuthenticatorSelection)}); err != nil {
		if code, ok := ctaphid.StatusOf(err); !ok || code != ctaphid.CTAP2_ERR_KEEPALIVE_CANCEL {
			return err
		}
	}

	return nil
}

// encryptPINHash encrypts the left 16 bytes of SHA-256(pin).
func encryptPINHash(protocol pinuv.Protocol, sharedSecret []byte, pin string) ([]byte, error) {
	pinHash := sha256.Sum256([]byte(pin))
	return protocol.Encrypt(sharedSecret, pinHash[:16])
}
