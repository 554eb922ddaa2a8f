package secure

// EncryptionProvider seals and opens the in-memory blobs that hold secret
// material, such as the shared signing key kept inside a Credential.
type EncryptionProvider interface {
	Encrypt(data []byte) ([]byte, error)
	Decrypt(data []byte) ([]byte, error)
}
