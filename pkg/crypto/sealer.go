package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// GCM layout constants. The nonce and tag are recorded hex-encoded in
// the audit record; the key itself never leaves configuration.
const (
	SealKeySize   = 32
	SealNonceSize = 12
	SealTagSize   = 16
)

// Sealer encrypts snapshots with AES-256-GCM.
type Sealer struct {
	key   []byte
	keyID string
}

// NewSealer builds a sealer from a 32-byte hex key. keyID may be
// empty, in which case the first 8 bytes of SHA-256(key) are used.
func NewSealer(keyHex, keyID string) (*Sealer, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(keyHex, "0x"), "0X")
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot key hex: %w", err)
	}
	if len(key) != SealKeySize {
		return nil, fmt.Errorf("snapshot key must be %d bytes, got %d", SealKeySize, len(key))
	}
	if keyID == "" {
		sum := sha256.Sum256(key)
		keyID = hex.EncodeToString(sum[:8])
	}
	return &Sealer{key: key, keyID: keyID}, nil
}

// KeyID identifies the key for out-of-band resolution.
func (s *Sealer) KeyID() string { return s.keyID }

// SealResult carries the ciphertext and the metadata that must be
// recorded for later decryption.
type SealResult struct {
	Ciphertext []byte
	NonceHex   string
	TagHex     string
}

// Seal encrypts plaintext with a random 12-byte nonce. The 16-byte
// GCM tag is split off the ciphertext so both parts can be recorded
// separately, matching the audit record layout.
func (s *Sealer) Seal(plaintext []byte) (*SealResult, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("cipher init failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm init failed: %w", err)
	}
	nonce := make([]byte, SealNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce generation failed: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	ct, tag := sealed[:len(sealed)-SealTagSize], sealed[len(sealed)-SealTagSize:]
	return &SealResult{
		Ciphertext: ct,
		NonceHex:   hex.EncodeToString(nonce),
		TagHex:     hex.EncodeToString(tag),
	}, nil
}

// Open decrypts a snapshot given the recorded nonce and tag.
func (s *Sealer) Open(ciphertext []byte, nonceHex, tagHex string) ([]byte, error) {
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce hex: %w", err)
	}
	tag, err := hex.DecodeString(tagHex)
	if err != nil {
		return nil, fmt.Errorf("invalid tag hex: %w", err)
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("cipher init failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm init failed: %w", err)
	}
	plain, err := gcm.Open(nil, nonce, append(append([]byte{}, ciphertext...), tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot authentication failed: %w", err)
	}
	return plain, nil
}
