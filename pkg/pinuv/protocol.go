// Package pinuv implements the PIN/UV auth protocols used to obtain pinUvAuthTokens.
package pinuv

import (
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/ldclabs/cose/iana"
	"github.com/ldclabs/cose/key"
	ecdh2 "github.com/ldclabs/cose/key/ecdh"
)

// Version is the pinUvAuthProtocol number an authenticator advertises in GetInfo.
type Version uint

const (
	One Version = iota + 1
	Two
)

var (
	ErrUnsupportedVersion  = errors.New("pinuv: unsupported protocol version")
	ErrInvalidSharedSecret = errors.New("pinuv: invalid shared secret length")
	ErrInvalidLength       = errors.New("pinuv: invalid plaintext or ciphertext length")
)

// Protocol is one PIN/UV auth protocol instance with its own ephemeral platform key.
type Protocol interface {
	Version() Version
	// PublicKey is the platform key agreement key as COSE_Key.
	PublicKey() key.Key
	// Encapsulate derives the shared secret with the authenticator's key agreement key.
	Encapsulate(peer key.Key) (platformKey key.Key, sharedSecret []byte, err error)
	Encrypt(sharedSecret, plaintext []byte) ([]byte, error)
	Decrypt(sharedSecret, ciphertext []byte) ([]byte, error)
	Authenticate(secret, message []byte) []byte
}

// New creates a protocol instance with a fresh P-256 key pair.
func New(v Version) (Protocol, error) {
	base, err := newKeyAgreement()
	if err != nil {
		return nil, err
	}

	switch v {
	case One:
		return &protocolOne{base}, nil
	case Two:
		return &protocolTwo{base}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
}

// Preferred picks the protocol to use from the versions an authenticator supports,
// honoring the authenticator's order of preference.
func Preferred(supported []Version) (Version, error) {
	for _, v := range supported {
		if v == One || v == Two {
			return v, nil
		}
	}

	return 0, ErrUnsupportedVersion
}

type keyAgreement struct {
	private *ecdh.PrivateKey
	public  key.Key
}

func newKeyAgreement() (keyAgreement, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return keyAgreement{}, fmt.Errorf("cannot generate platform P-256 keypair: %w", err)
	}

	pub, err := ecdh2.KeyFromPublic(priv.PublicKey())
	if err != nil {
		return keyAgreement{}, fmt.Errorf("cannot convert platform public key to COSE_Key: %w", err)
	}
	if err := pub.Set(iana.KeyParameterAlg, -25); err != nil {
		return keyAgreement{}, fmt.Errorf("cannot set alg parameter for COSE_Key: %w", err)
	}
	// Authenticators such as SoloKeys Solo 2 reject a COSE_Key carrying a kid.
	delete(pub, iana.KeyParameterKid)

	return keyAgreement{private: priv, public: pub}, nil
}

func (k keyAgreement) PublicKey() key.Key {
	return k.public
}

func (k keyAgreement) ecdh(peer key.Key) ([]byte, error) {
	peerPub, err := ecdh2.KeyToPublic(peer)
	if err != nil {
		return nil, fmt.Errorf("cannot convert peer COSE_Key: %w", err)
	}

	z, err := k.private.ECDH(peerPub)
	if err != nil {
		return nil, fmt.Errorf("cannot derive shared secret: %w", err)
	}

	return z, nil
}
