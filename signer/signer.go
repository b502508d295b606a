// Package signer holds the issuer's secp256k1 key and produces and checks
// 64-byte compact ECDSA signatures over SHA-256 digests.
package signer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/decred/slog"
)

var ErrInvalidKey = errors.New("invalid issuer key")

// KeySource says where LoadOrCreate found the key.
type KeySource int

const (
	KeyFromStore KeySource = iota
	KeyFromEnv
	KeyGenerated
)

func (s KeySource) String() string {
	switch s {
	case KeyFromStore:
		return "store"
	case KeyFromEnv:
		return "env"
	case KeyGenerated:
		return "generated"
	default:
		return "unknown"
	}
}

// Signer signs with a single in-memory issuer key.
type Signer struct {
	priv   *secp256k1.PrivateKey
	pubHex string
}

// New wraps a raw 32-byte secret.
func New(secret []byte) (*Signer, error) {
	if len(secret) != 32 {
		return nil, fmt.Errorf("%w: need 32 bytes, got %d", ErrInvalidKey, len(secret))
	}
	var x secp256k1.ModNScalar
	if overflow := x.SetByteSlice(secret); overflow || x.IsZero() {
		return nil, fmt.Errorf("%w: scalar out of range", ErrInvalidKey)
	}
	priv := secp256k1.NewPrivateKey(&x)
	return &Signer{
		priv:   priv,
		pubHex: hex.EncodeToString(priv.PubKey().SerializeCompressed()),
	}, nil
}

// ParseHex builds a Signer from a 64-char hex secret.
func ParseHex(secretHex string) (*Signer, error) {
	b, err := hex.DecodeString(strings.TrimSpace(secretHex))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return New(b)
}

// Generate creates a fresh random key.
func Generate() (*Signer, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return New(priv.Serialize())
}

// LoadOrCreate resolves the issuer key: the store wins, then envHex (which is
// persisted to the store), then a freshly generated key (also persisted).
func LoadOrCreate(ks KeyStore, envHex string, log slog.Logger) (*Signer, KeySource, error) {
	if log == nil {
		log = slog.Disabled
	}

	secret, err := ks.Load()
	switch {
	case err == nil:
		s, err := New(secret)
		if err != nil {
			return nil, 0, err
		}
		return s, KeyFromStore, nil
	case !errors.Is(err, ErrNoKey):
		return nil, 0, err
	}

	if envHex = strings.TrimSpace(envHex); envHex != "" {
		s, err := ParseHex(envHex)
		if err != nil {
			return nil, 0, err
		}
		if err := ks.Store(s.secret()); err != nil {
			return nil, 0, fmt.Errorf("persist issuer key: %w", err)
		}
		log.Infof("Issuer key loaded from environment")
		return s, KeyFromEnv, nil
	}

	s, err := Generate()
	if err != nil {
		return nil, 0, err
	}
	if err := ks.Store(s.secret()); err != nil {
		return nil, 0, fmt.Errorf("persist issuer key: %w", err)
	}
	log.Warnf("Generated a new issuer key (ephemeral-key mode); set RGB_ISSUER_KEY " +
		"in production so proofs stay verifiable across deployments")
	return s, KeyGenerated, nil
}

// PubKeyHex is the 33-byte compressed public key, hex encoded.
func (s *Signer) PubKeyHex() string { return s.pubHex }

func (s *Signer) secret() []byte { return s.priv.Serialize() }

// Sign hashes data with SHA-256 and returns the 64-byte compact r||s
// signature as 128 hex chars.
func (s *Signer) Sign(data []byte) (string, error) {
	if s == nil || s.priv == nil {
		return "", errors.New("signer has no key")
	}
	hash := sha256.Sum256(data)
	// SignCompact prefixes a recovery byte; drop it.
	sig := ecdsa.SignCompact(s.priv, hash[:], true)
	if len(sig) != 65 {
		return "", fmt.Errorf("unexpected compact signature length %d", len(sig))
	}
	return hex.EncodeToString(sig[1:]), nil
}

// Verify checks a compact signature made by Sign against pubHex. Malformed
// hex, wrong lengths, scalars out of range, high-S signatures and off-curve
// keys all yield false, so each message has exactly one valid signature.
func Verify(data []byte, sigHex, pubHex string) bool {
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil || len(sigBytes) != 64 {
		return false
	}
	pkBytes, err := hex.DecodeString(pubHex)
	if err != nil {
		return false
	}
	pub, err := secp256k1.ParsePubKey(pkBytes)
	if err != nil {
		return false
	}

	var r, sc secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sigBytes[:32]); overflow || r.IsZero() {
		return false
	}
	if overflow := sc.SetByteSlice(sigBytes[32:]); overflow || sc.IsZero() || sc.IsOverHalfOrder() {
		return false
	}

	hash := sha256.Sum256(data)
	return ecdsa.NewSignature(&r, &sc).Verify(hash[:], pub)
}
