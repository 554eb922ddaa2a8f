package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"io"
	"math"
	"sync"

	"github.com/oddbit-project/chargebridge/utils"
)

const (
	ErrInvalidKeyLength     = utils.Error("key length must be 32 bytes")
	ErrDataTooShort         = utils.Error("data too short")
	ErrNonceExhausted       = utils.Error("nonce counter exhausted, key rotation required")
	ErrAuthenticationFailed = utils.Error("authentication failed")
)

// AES256GCM encrypts and decrypts in-memory secrets; Clear wipes the key material
type AES256GCM interface {
	EncryptionProvider
	Clear()
}

type aes256Gcm struct {
	key     []byte
	counter uint64
	mu      sync.Mutex
}

// NewAES256GCM creates a AES256GCM object; key must be 32 bytes long
func NewAES256GCM(key []byte) (AES256GCM, error) {
	if subtle.ConstantTimeEq(int32(len(key)), 32) != 1 {
		return nil, ErrInvalidKeyLength
	}

	result := &aes256Gcm{
		key:     make([]byte, len(key)),
		counter: 0,
	}
	copy(result.key, key)
	return result, nil
}

// Clear wipes the key material
func (a *aes256Gcm) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.key != nil {
		for i := range a.key {
			a.key[i] = 0
		}
		// constant-time copy to prevent the zeroing loop from being optimized away
		subtle.ConstantTimeCopy(1, a.key, make([]byte, len(a.key)))
		a.key = nil
	}
	a.counter = 0
}

// Encrypt encrypts data using AES256-GCM; the nonce is prepended to the result
func (a *aes256Gcm) Encrypt(data []byte) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.key == nil {
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(a.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if a.counter == math.MaxUint64 {
		return nil, ErrNonceExhausted
	}

	// nonce layout: 4 random bytes to reduce correlation, 8 counter bytes for uniqueness
	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce[:4]); err != nil {
		return nil, err
	}
	binary.BigEndian.PutUint64(nonce[4:], a.counter)
	a.counter++

	encrypted := gcm.Seal(nil, nonce, data, nil)
	return append(nonce, encrypted...), nil
}

// Decrypt decrypts data previously produced by Encrypt
func (a *aes256Gcm) Decrypt(data []byte) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.key == nil {
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(a.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize+gcm.Overhead() {
		return nil, ErrDataTooShort
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}
