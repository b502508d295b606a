package signer

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// KeyFileName is the issuer key file inside the data directory.
const KeyFileName = "issuer.key"

// ErrNoKey is returned by a KeyStore that holds no key yet.
var ErrNoKey = errors.New("no issuer key stored")

// KeyStore abstracts custody of the 32-byte issuer secret. The file store is
// the only implementation here; an HSM or KMS backed store only has to honour
// the same contract.
type KeyStore interface {
	// Load returns the raw 32-byte secret or ErrNoKey.
	Load() ([]byte, error)
	// Store persists the raw 32-byte secret.
	Store(secret []byte) error
}

// FileKeyStore keeps the secret hex-encoded in a plaintext file.
type FileKeyStore struct {
	path string
}

func NewFileKeyStore(dataDir string) *FileKeyStore {
	return &FileKeyStore{path: filepath.Join(dataDir, KeyFileName)}
}

func (ks *FileKeyStore) Path() string { return ks.path }

func (ks *FileKeyStore) Load() ([]byte, error) {
	b, err := os.ReadFile(ks.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoKey
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ks.path, err)
	}
	secret, err := hex.DecodeString(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidKey, ks.path, err)
	}
	return secret, nil
}

func (ks *FileKeyStore) Store(secret []byte) error {
	if err := os.MkdirAll(filepath.Dir(ks.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(ks.path, []byte(hex.EncodeToString(secret)), 0o600)
}
