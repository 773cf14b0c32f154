package pinuv

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"slices"

	"github.com/ldclabs/cose/key"
	"golang.org/x/crypto/hkdf"
)

// protocolTwo is PIN/UV auth protocol 2: HKDF-SHA-256 deriving separate HMAC
// and AES keys, AES-256-CBC with a random IV and full HMAC-SHA-256.
// The shared secret is the HMAC key followed by the AES key.
type protocolTwo struct {
	keyAgreement
}

func (p *protocolTwo) Version() Version {
	return Two
}

func (p *protocolTwo) Encapsulate(peer key.Key) (key.Key, []byte, error) {
	z, err := p.ecdh(peer)
	if err != nil {
		return nil, nil, err
	}

	salt := make([]byte, 32)
	hmacKey, err := expand(z, salt, "CTAP2 HMAC key")
	if err != nil {
		return nil, nil, err
	}
	aesKey, err := expand(z, salt, "CTAP2 AES key")
	if err != nil {
		return nil, nil, err
	}

	return p.public, slices.Concat(hmacKey, aesKey), nil
}

func expand(z, salt []byte, info string) ([]byte, error) {
	out := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, z, salt, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("deriving %q using HKDF failed: %w", info, err)
	}
	return out, nil
}

func (p *protocolTwo) Encrypt(sharedSecret, plaintext []byte) ([]byte, error) {
	if len(sharedSecret) != 64 {
		return nil, ErrInvalidSharedSecret
	}
	if len(plaintext)%aes.BlockSize != 0 {
		return nil, ErrInvalidLength
	}

	block, err := aes.NewCipher(sharedSecret[32:])
	if err != nil {
		return nil, err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("cannot generate random iv: %w", err)
	}

	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)

	return slices.Concat(iv, ciphertext), nil
}

func (p *protocolTwo) Decrypt(sharedSecret, ciphertext []byte) ([]byte, error) {
	if len(sharedSecret) != 64 {
		return nil, ErrInvalidSharedSecret
	}
	if len(ciphertext) < 2*aes.BlockSize || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrInvalidLength
	}

	block, err := aes.NewCipher(sharedSecret[32:])
	if err != nil {
		return nil, err
	}

	iv, data := ciphertext[:aes.BlockSize], ciphertext[aes.BlockSize:]
	plaintext := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, data)

	return plaintext, nil
}

// Authenticate uses only the first 32 bytes of secret, which selects the HMAC
// key of a shared secret and is a no-op for a pinUvAuthToken.
func (p *protocolTwo) Authenticate(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret[:min(len(secret), 32)])
	mac.Write(message)
	return mac.Sum(nil)
}
