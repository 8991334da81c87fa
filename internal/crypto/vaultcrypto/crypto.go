// Package vaultcrypto contains AEAD primitives and key derivation for the vault.
package vaultcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	pkgcrypto "github.com/agentmesh/trustcore/internal/crypto"
	"github.com/agentmesh/trustcore/internal/errs"
)

// Versioned algorithm identifiers stored alongside every record so the cipher
// can change without breaking decryption of existing rows.
const (
	AlgorithmAESGCM  = "AES-256-GCM-v1"
	AlgorithmXChaCha = "XCHACHA20-POLY1305-v1"
)

// KnownAlgorithm reports whether alg is a supported cipher identifier.
func KnownAlgorithm(alg string) bool {
	switch alg {
	case AlgorithmAESGCM, AlgorithmXChaCha:
		return true
	}
	return false
}

// KeyLen is the derived record key length in bytes.
const KeyLen = 32

// MinMasterKeyLen is the minimum accepted vault master key length (256 bits).
const MinMasterKeyLen = 32

// DeriveRecordKey derives the (user, agent) record key from the master key via
// HKDF-SHA256. Compromise of one derived key exposes no other pair's data.
func DeriveRecordKey(master []byte, userID, agentID string) ([]byte, error) {
	if len(master) < MinMasterKeyLen {
		return nil, fmt.Errorf("vault master key too short: need at least 256 bits")
	}
	info := []byte(userID + "|" + agentID)
	r := hkdf.New(sha256.New, master, nil, info)
	key := make([]byte, KeyLen)
	if _, err := r.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

func newAEAD(alg string, key []byte) (cipher.AEAD, error) {
	switch alg {
	case AlgorithmAESGCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case AlgorithmXChaCha:
		return chacha20poly1305.NewX(key)
	default:
		return nil, fmt.Errorf("unknown vault algorithm %q", alg)
	}
}

// Encrypt seals plaintext under key with a fresh random IV and returns
// ciphertext, IV and authentication tag separately. aad binds the record
// address so a blob moved to another row fails decryption.
func Encrypt(alg string, key, plaintext, aad []byte) (ciphertext, iv, tag []byte, err error) {
	aead, err := newAEAD(alg, key)
	if err != nil {
		return nil, nil, nil, err
	}
	iv, err = pkgcrypto.RandBytes(aead.NonceSize())
	if err != nil {
		return nil, nil, nil, err
	}
	sealed := aead.Seal(nil, iv, plaintext, aad)
	split := len(sealed) - aead.Overhead()
	return sealed[:split], iv, sealed[split:], nil
}

// Decrypt opens ciphertext with the given IV, tag and aad. Any bit-level
// alteration of ciphertext, IV or tag fails closed with ErrVaultIntegrity.
func Decrypt(alg string, key, ciphertext, iv, tag, aad []byte) ([]byte, error) {
	aead, err := newAEAD(alg, key)
	if err != nil {
		return nil, err
	}
	if len(iv) != aead.NonceSize() {
		return nil, fmt.Errorf("bad iv length: %w", errs.ErrVaultIntegrity)
	}
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err := aead.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("aead open: %w", errs.ErrVaultIntegrity)
	}
	return plaintext, nil
}
