// Package cipher implements optional convergent encryption for chunk
// bytes at rest: the encryption key for a chunk is derived from its
// plaintext hash, so identical plaintext chunks always produce identical
// ciphertext and dedup still works after encryption.
package cipher

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/byronwade/dits/pkg/hashapi"
)

const keyInfo = "dits-chunk-key-v1"

// Sealer derives per-chunk keys from a repo-wide salt and seals/opens
// chunk bytes with ChaCha20-Poly1305.
type Sealer struct {
	salt [32]byte
}

// NewSealer builds a Sealer for a repo salt (stored once in .dits/config
// at repo init and never rotated without re-encrypting every chunk).
func NewSealer(salt [32]byte) *Sealer {
	return &Sealer{salt: salt}
}

// deriveKey runs HKDF-SHA256 over (salt, hash) to produce a 32-byte AEAD
// key. The derivation is deterministic: same hash, same salt, same key.
func (s *Sealer) deriveKey(h hashapi.Hash) ([]byte, error) {
	r := hkdf.New(sha256.New, h[:], s.salt[:], []byte(keyInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("cipher: derive key: %w", err)
	}
	return key, nil
}

// nonce derives a deterministic 12-byte nonce from the chunk hash. Reusing
// a nonce is normally unsafe, but here the key itself is a function of the
// plaintext hash, so (key, nonce) is unique per distinct plaintext and
// convergent encryption's dedup property is preserved rather than broken.
func nonceFor(h hashapi.Hash) []byte {
	return h[:chacha20poly1305.NonceSize]
}

// Seal encrypts plaintext, returning ciphertext with an appended Poly1305
// tag. hash must be the plaintext's content hash.
func (s *Sealer) Seal(hash hashapi.Hash, plaintext []byte) ([]byte, error) {
	key, err := s.deriveKey(hash)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: new aead: %w", err)
	}
	return aead.Seal(nil, nonceFor(hash), plaintext, nil), nil
}

// Open decrypts ciphertext produced by Seal for the same hash.
func (s *Sealer) Open(hash hashapi.Hash, ciphertext []byte) ([]byte, error) {
	key, err := s.deriveKey(hash)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: new aead: %w", err)
	}
	plaintext, err := aead.Open(nil, nonceFor(hash), ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("cipher: open: authentication failed: %w", err)
	}
	return plaintext, nil
}
