package secure

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"sync"

	"github.com/oddbit-project/chargebridge/utils"
)

const (
	ErrInvalidKey      = utils.Error("invalid encryption key")
	ErrEmptyCredential = utils.Error("empty credential")
)

// Credential stores sensitive information (like the shared signing secret)
// in encrypted form in memory, to shorten the plaintext exposure window
type Credential struct {
	cipher        AES256GCM
	encryptedData []byte
	allowEmpty    bool
	mu            sync.RWMutex
}

// NewCredential creates a new secure credential container.
// The encryption key should be unique per application instance; use GenerateKey
// to produce one. If allowEmpty is false, an empty value is rejected.
func NewCredential(value []byte, encryptionKey []byte, allowEmpty bool) (*Credential, error) {
	if len(value) == 0 && !allowEmpty {
		return nil, ErrEmptyCredential
	}

	cipher, err := NewAES256GCM(encryptionKey)
	if err != nil {
		return nil, ErrInvalidKey
	}

	c := &Credential{
		cipher:     cipher,
		allowEmpty: allowEmpty,
	}
	if c.encryptedData, err = cipher.Encrypt(value); err != nil {
		return nil, err
	}
	return c, nil
}

// Get decrypts and returns the plaintext credential.
// This should be called only when needed to minimize exposure of the
// sensitive data in memory.
func (c *Credential) Get() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.encryptedData == nil {
		return "", ErrEmptyCredential
	}

	plaintext, err := c.cipher.Decrypt(c.encryptedData)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// GetBytes decrypts and returns the raw credential bytes
func (c *Credential) GetBytes() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.encryptedData == nil {
		return nil, ErrEmptyCredential
	}
	return c.cipher.Decrypt(c.encryptedData)
}

// Update replaces the credential with a new plaintext value
func (c *Credential) Update(value []byte) error {
	if len(value) == 0 && !c.allowEmpty {
		return ErrEmptyCredential
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	encrypted, err := c.cipher.Encrypt(value)
	if err != nil {
		return err
	}
	c.encryptedData = encrypted
	return nil
}

// IsEmpty returns true if the stored credential is the empty string
func (c *Credential) IsEmpty() bool {
	v, err := c.GetBytes()
	return err != nil || len(v) == 0
}

// Clear zeroes out all sensitive data
func (c *Credential) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.encryptedData != nil {
		for i := range c.encryptedData {
			c.encryptedData[i] = 0
		}
		c.encryptedData = nil
	}
	c.cipher.Clear()
}

// CredentialFromConfig builds a Credential from a credential source, using key
// as the in-memory encryption key
func CredentialFromConfig(cfg CredentialConfig, key []byte, allowEmpty bool) (*Credential, error) {
	value, err := cfg.Fetch()
	if err != nil {
		return nil, err
	}
	return NewCredential([]byte(value), key, allowEmpty)
}

// GenerateKey generates a random 32-byte key for AES-256
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// EncodeKey encodes a key as a base64 string for storage
func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// DecodeKey decodes a base64 encoded key
func DecodeKey(encodedKey string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encodedKey)
}
