package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// SigAlgEd25519 is the algorithm tag recorded alongside signatures.
const SigAlgEd25519 = "ed25519"

// PubKeyIDLen is the number of hex characters of the public key kept
// as the signer identifier (first 12 bytes).
const PubKeyIDLen = 24

// Signer produces detached signatures over canonical payloads.
type Signer interface {
	Sign(data []byte) (string, error)
	PublicKey() string
	KeyID() string
	Algorithm() string
}

// Ed25519Signer signs with a raw Ed25519 private key.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// NewEd25519Signer generates a fresh keypair. Used in tests and
// ephemeral deployments; production loads a key from configuration.
func NewEd25519Signer() (*Ed25519Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return &Ed25519Signer{priv: priv, pub: pub}, nil
}

// NewEd25519SignerFromHex builds a signer from a 32-byte hex seed,
// the format used by the ED25519_PRIV_HEX setting. A leading 0x is
// tolerated.
func NewEd25519SignerFromHex(seedHex string) (*Ed25519Signer, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(seedHex, "0x"), "0X")
	seed, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid signing key hex: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("signing key must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Ed25519Signer{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

func (s *Ed25519Signer) Sign(data []byte) (string, error) {
	return hex.EncodeToString(ed25519.Sign(s.priv, data)), nil
}

func (s *Ed25519Signer) PublicKey() string {
	return hex.EncodeToString(s.pub)
}

// KeyID returns the first 24 hex characters of the public key.
func (s *Ed25519Signer) KeyID() string {
	return s.PublicKey()[:PubKeyIDLen]
}

func (s *Ed25519Signer) Algorithm() string { return SigAlgEd25519 }

// Verify checks a hex signature against a hex public key.
func Verify(pubKeyHex, sigHex string, data []byte) (bool, error) {
	pubKey, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return false, fmt.Errorf("invalid public key hex: %w", err)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(pubKey) != ed25519.PublicKeySize {
		return false, fmt.Errorf("invalid public key size")
	}
	return ed25519.Verify(ed25519.PublicKey(pubKey), data, sig), nil
}
