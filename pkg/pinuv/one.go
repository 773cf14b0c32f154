package pinuv

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"

	"github.com/ldclabs/cose/key"
)

// protocolOne is PIN/UV auth protocol 1: SHA-256 KDF, AES-256-CBC with a zero IV
// and HMAC-SHA-256 truncated to 16 bytes.
type protocolOne struct {
	keyAgreement
}

func (p *protocolOne) Version() Version {
	return One
}

func (p *protocolOne) Encapsulate(peer key.Key) (key.Key, []byte, error) {
	z, err := p.ecdh(peer)
	if err != nil {
		return nil, nil, err
	}

	secret := sha256.Sum256(z)
	return p.public, secret[:], nil
}

func (p *protocolOne) Encrypt(sharedSecret, plaintext []byte) ([]byte, error) {
	if len(sharedSecret) != 32 {
		return nil, ErrInvalidSharedSecret
	}
	if len(plaintext)%aes.BlockSize != 0 {
		return nil, ErrInvalidLength
	}

	block, err := aes.NewCipher(sharedSecret)
	if err != nil {
		return nil, err
	}

	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(ciphertext, plaintext)

	return ciphertext, nil
}

func (p *protocolOne) Decrypt(sharedSecret, ciphertext []byte) ([]byte, error) {
	if len(sharedSecret) != 32 {
		return nil, ErrInvalidSharedSecret
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrInvalidLength
	}

	block, err := aes.NewCipher(sharedSecret)
	if err != nil {
		return nil, err
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(plaintext, ciphertext)

	return plaintext, nil
}

func (p *protocolOne) Authenticate(secret, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return mac.Sum(nil)[:16]
}
