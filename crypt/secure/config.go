package secure

import (
	"strings"

	"github.com/oddbit-project/chargebridge/utils/env"
	"github.com/oddbit-project/chargebridge/utils/fs"
)

// CredentialConfig is a source of secret material
type CredentialConfig interface {
	IsEmpty() bool
	Fetch() (string, error)
}

// SecretConfig misc options for sourcing a secret; the plaintext value wins over
// the env var, and the env var wins over the secrets file.
// If different field names are required, just implement CredentialConfig
type SecretConfig struct {
	Secret       string `json:"secret"`       // Secret plaintext value; if set, is used instead of the rest
	SecretEnvVar string `json:"secretEnvVar"` // SecretEnvVar name of env var with the secret
	SecretFile   string `json:"secretFile"`   // SecretFile name of secrets file to be read
}

// IsEmpty returns true if credential source is empty
func (c SecretConfig) IsEmpty() bool {
	return strings.TrimSpace(c.Secret) == "" &&
		strings.TrimSpace(c.SecretEnvVar) == "" &&
		strings.TrimSpace(c.SecretFile) == ""
}

// Fetch retrieve the contents of the credential
func (c SecretConfig) Fetch() (string, error) {
	plainText := strings.TrimSpace(c.Secret)
	if plainText != "" {
		return plainText, nil
	}

	if envVar := strings.TrimSpace(c.SecretEnvVar); envVar != "" {
		// read from env var and clear it
		plainText = env.GetEnvVar(envVar)
		_ = env.SetEnvVar(envVar, "")
		return plainText, nil
	}

	if c.SecretFile != "" {
		return fs.ReadString(c.SecretFile)
	}
	return "", nil
}
