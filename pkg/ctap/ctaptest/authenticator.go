// Package ctaptest provides a software authenticator that answers the CTAP2
// commands the ctap package sends.
package ctaptest

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-ctap/uvprompt/pkg/ctap"
	"github.com/go-ctap/uvprompt/pkg/ctaphid"
	"github.com/go-ctap/uvprompt/pkg/ctaphid/ctaphidtest"
	"github.com/go-ctap/uvprompt/pkg/pinuv"
	"github.com/samber/lo"
)

// Authenticator is an in-memory CTAP2.1 authenticator with a fingerprint sensor and a PIN.
// Built-in verification attempts are answered from UVResults in order and succeed once
// the script is exhausted. A UV attempt blocks until ctx is done if Hold is set.
type Authenticator struct {
	mu sync.Mutex

	Info       ctap.GetInfoResponse
	PIN        string
	PINRetries uint
	UVRetries  uint
	UVResults  []ctaphid.StatusCode
	Hold       bool

	token    []byte
	keys     map[pinuv.Version]pinuv.Protocol
	requests []ctap.ClientPINRequest
}

// New returns an authenticator with an enrolled fingerprint, PIN "1234" and protocol two.
func New() *Authenticator {
	return &Authenticator{
		Info: ctap.GetInfoResponse{
			Versions: []string{"FIDO_2_0", "FIDO_2_1"},
			Options: map[ctap.Option]bool{
				ctap.OptionClientPIN:        true,
				ctap.OptionUserVerification: true,
				ctap.OptionPinUvAuthToken:   true,
				ctap.OptionBioEnroll:        true,
			},
			PinUvAuthProtocols: []pinuv.Version{pinuv.Two, pinuv.One},
			UvModality:         ctap.UVModalityFingerprintInternal,
		},
		PIN:        "1234",
		PINRetries: 8,
		UVRetries:  5,
		token:      lo.Must(randomToken()),
		keys:       map[pinuv.Version]pinuv.Protocol{},
	}
}

func randomToken() ([]byte, error) {
	token := make([]byte, 32)
	_, err := rand.Read(token)
	return token, err
}

// Token is the pinUvAuthToken handed out on successful verification.
func (a *Authenticator) Token() []byte {
	return a.token
}

// Requests returns every clientPIN request received so far.
func (a *Authenticator) Requests() []ctap.ClientPINRequest {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]ctap.ClientPINRequest(nil), a.requests...)
}

// SubCommands returns the subcommands of every clientPIN request received so far.
func (a *Authenticator) SubCommands() []ctap.ClientPINSubCommand {
	return lo.Map(a.Requests(), func(r ctap.ClientPINRequest, _ int) ctap.ClientPINSubCommand {
		return r.SubCommand
	})
}

func (a *Authenticator) CBOR(ctx context.Context, request []byte) ([]byte, error) {
	if len(request) == 0 {
		return nil, errors.New("ctaptest: empty request")
	}

	resp, code := a.handle(ctx, ctap.Command(request[0]), request[1:])
	if code != ctaphid.CTAP2_OK {
		return nil, &ctaphid.CTAPError{Command: request[0], StatusCode: code}
	}
	if resp == nil {
		return nil, nil
	}

	encMode, _ := cbor.CTAP2EncOptions().EncMode()
	return encMode.Marshal(resp)
}

// Handler exposes the authenticator behind CTAPHID framing for ctaphidtest.Device.
func (a *Authenticator) Handler(cid ctaphid.ChannelID) ctaphidtest.Handler {
	return func(req *ctaphid.Message) []*ctaphid.Message {
		switch req.Command {
		case ctaphid.CTAPHID_INIT:
			return []*ctaphid.Message{ctaphidtest.InitAnswer(req, cid)}
		case ctaphid.CTAPHID_CANCEL:
			return nil
		case ctaphid.CTAPHID_PING:
			return []*ctaphid.Message{{CID: cid, Command: ctaphid.CTAPHID_PING, Payload: req.Payload}}
		case ctaphid.CTAPHID_CBOR:
			resp, err := a.CBOR(context.Background(), req.Payload)
			if code, ok := ctaphid.StatusOf(err); ok {
				return []*ctaphid.Message{ctaphidtest.CBORStatus(cid, code)}
			}
			if err != nil {
				return []*ctaphid.Message{ctaphidtest.CBORStatus(cid, ctaphid.CTAP1_ERR_OTHER)}
			}
			return []*ctaphid.Message{ctaphidtest.CBOROK(cid, resp)}
		default:
			return []*ctaphid.Message{{CID: cid, Command: ctaphid.CTAPHID_ERROR, Payload: []byte{0x01}}}
		}
	}
}

func (a *Authenticator) handle(ctx context.Context, cmd ctap.Command, params []byte) (any, ctaphid.StatusCode) {
	switch cmd {
	case ctap.AuthenticatorGetInfo:
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.Info, ctaphid.CTAP2_OK
	case ctap.AuthenticatorSelection:
		return nil, ctaphid.CTAP2_OK
	case ctap.AuthenticatorClientPIN:
		var req ctap.ClientPINRequest
		if err := cbor.Unmarshal(params, &req); err != nil {
			return nil, ctaphid.CTAP2_ERR_INVALID_CBOR
		}
		return a.clientPIN(ctx, &req)
	default:
		return nil, ctaphid.CTAP1_ERR_INVALID_COMMAND
	}
}

func (a *Authenticator) clientPIN(ctx context.Context, req *ctap.ClientPINRequest) (any, ctaphid.StatusCode) {
	a.mu.Lock()
	a.requests = append(a.requests, *req)
	a.mu.Unlock()

	switch req.SubCommand {
	case ctap.ClientPINSubCommandGetPINRetries:
		a.mu.Lock()
		defer a.mu.Unlock()
		return &ctap.ClientPINResponse{PinRetries: a.PINRetries}, ctaphid.CTAP2_OK
	case ctap.ClientPINSubCommandGetUVRetries:
		a.mu.Lock()
		defer a.mu.Unlock()
		return &ctap.ClientPINResponse{UvRetries: a.UVRetries}, ctaphid.CTAP2_OK
	case ctap.ClientPINSubCommandGetKeyAgreement:
		p, err := a.protocol(req.PinUvAuthProtocol)
		if err != nil {
			return nil, ctaphid.CTAP1_ERR_INVALID_PARAMETER
		}
		return &ctap.ClientPINResponse{KeyAgreement: p.PublicKey()}, ctaphid.CTAP2_OK
	case ctap.ClientPINSubCommandGetPinUvAuthTokenUsingUvWithPermissions:
		return a.verifyUser(ctx, req)
	case ctap.ClientPINSubCommandGetPinToken, ctap.ClientPINSubCommandGetPinUvAuthTokenUsingPinWithPermissions:
		return a.verifyPIN(req)
	default:
		return nil, ctaphid.CTAP2_ERR_INVALID_SUBCOMMAND
	}
}

func (a *Authenticator) protocol(v pinuv.Version) (pinuv.Protocol, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if p, ok := a.keys[v]; ok {
		return p, nil
	}

	p, err := pinuv.New(v)
	if err != nil {
		return nil, err
	}
	a.keys[v] = p

	return p, nil
}

func (a *Authenticator) verifyUser(ctx context.Context, req *ctap.ClientPINRequest) (any, ctaphid.StatusCode) {
	a.mu.Lock()
	enrolled, ok := a.Info.Options[ctap.OptionUserVerification]
	hold := a.Hold
	a.mu.Unlock()

	if !ok {
		return nil, ctaphid.CTAP2_ERR_INVALID_SUBCOMMAND
	}
	if !enrolled {
		return nil, ctaphid.CTAP2_ERR_NOT_ALLOWED
	}

	if hold {
		<-ctx.Done()
		return nil, ctaphid.CTAP2_ERR_KEEPALIVE_CANCEL
	}

	a.mu.Lock()
	if a.UVRetries == 0 {
		a.mu.Unlock()
		return nil, ctaphid.CTAP2_ERR_UV_BLOCKED
	}
	if len(a.UVResults) > 0 {
		code := a.UVResults[0]
		a.UVResults = a.UVResults[1:]
		if code == ctaphid.CTAP2_ERR_UV_INVALID {
			a.UVRetries--
			if a.UVRetries == 0 {
				code = ctaphid.CTAP2_ERR_UV_BLOCKED
			}
		}
		if code != ctaphid.CTAP2_OK {
			a.mu.Unlock()
			return nil, code
		}
	}
	a.mu.Unlock()

	return a.issueToken(req)
}

func (a *Authenticator) verifyPIN(req *ctap.ClientPINRequest) (any, ctaphid.StatusCode) {
	a.mu.Lock()
	pin, retries := a.PIN, a.PINRetries
	a.mu.Unlock()

	if pin == "" {
		return nil, ctaphid.CTAP2_ERR_PIN_NOT_SET
	}
	if retries == 0 {
		return nil, ctaphid.CTAP2_ERR_PIN_BLOCKED
	}

	secret, p, code := a.sharedSecret(req)
	if code != ctaphid.CTAP2_OK {
		return nil, code
	}

	pinHash, err := p.Decrypt(secret, req.PinHashEnc)
	if err != nil {
		return nil, ctaphid.CTAP2_ERR_PIN_AUTH_INVALID
	}

	want := sha256.Sum256([]byte(pin))
	if !bytes.Equal(pinHash, want[:16]) {
		a.mu.Lock()
		defer a.mu.Unlock()

		a.PINRetries--
		if a.PINRetries == 0 {
			return nil, ctaphid.CTAP2_ERR_PIN_BLOCKED
		}
		return nil, ctaphid.CTAP2_ERR_PIN_INVALID
	}

	a.mu.Lock()
	a.PINRetries = 8
	a.mu.Unlock()

	return a.issueToken(req)
}

func (a *Authenticator) sharedSecret(req *ctap.ClientPINRequest) ([]byte, pinuv.Protocol, ctaphid.StatusCode) {
	if req.KeyAgreement == nil {
		return nil, nil, ctaphid.CTAP2_ERR_MISSING_PARAMETER
	}

	p, err := a.protocol(req.PinUvAuthProtocol)
	if err != nil {
		return nil, nil, ctaphid.CTAP1_ERR_INVALID_PARAMETER
	}

	_, secret, err := p.Encapsulate(req.KeyAgreement)
	if err != nil {
		return nil, nil, ctaphid.CTAP1_ERR_INVALID_PARAMETER
	}

	return secret, p, ctaphid.CTAP2_OK
}

func (a *Authenticator) issueToken(req *ctap.ClientPINRequest) (any, ctaphid.StatusCode) {
	secret, p, code := a.sharedSecret(req)
	if code != ctaphid.CTAP2_OK {
		return nil, code
	}

	enc, err := p.Encrypt(secret, a.token)
	if err != nil {
		return nil, ctaphid.CTAP1_ERR_OTHER
	}

	return &ctap.ClientPINResponse{PinUvAuthToken: enc}, ctaphid.CTAP2_OK
}
