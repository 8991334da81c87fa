// Package vault implements the encrypted per-user, per-agent record store.
// Authorization is the caller's job: collaborators validate a consent token
// (or trust link) before invoking these operations.
package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentmesh/trustcore/internal/crypto/vaultcrypto"
	"github.com/agentmesh/trustcore/internal/errs"
	"github.com/agentmesh/trustcore/internal/model"
	"github.com/agentmesh/trustcore/internal/repository"
	"github.com/agentmesh/trustcore/internal/scope"
)

// Service encrypts, persists and retrieves vault records. Every (user, agent)
// pair uses its own HKDF-derived key, so one leaked key exposes one pair only.
type Service struct {
	repo      repository.VaultRecordRepository
	masterKey []byte
	algorithm string
}

// NewService constructs the vault service. algorithm selects the AEAD used for
// new writes; records written under an older algorithm still decrypt.
func NewService(repo repository.VaultRecordRepository, masterKey []byte, algorithm string) (*Service, error) {
	if len(masterKey) < vaultcrypto.MinMasterKeyLen {
		return nil, errors.New("vault master key too short: need at least 256 bits")
	}
	if algorithm == "" {
		algorithm = vaultcrypto.AlgorithmAESGCM
	}
	if !vaultcrypto.KnownAlgorithm(algorithm) {
		return nil, fmt.Errorf("unknown vault algorithm %q", algorithm)
	}
	key := append([]byte(nil), masterKey...)
	return &Service{repo: repo, masterKey: key, algorithm: algorithm}, nil
}

// aad binds the ciphertext to its address so a blob copied between rows
// fails decryption.
func aad(userID, agentID, recordType, recordID string) []byte {
	return []byte(userID + "|" + agentID + "|" + recordType + "|" + recordID)
}

func validateAddress(userID, agentID, recordType, recordID string) error {
	if userID == "" || agentID == "" || recordType == "" || recordID == "" {
		return errors.New("validation: empty address component")
	}
	return nil
}

// Store encrypts plaintext under the (userID, agentID) key and writes or
// overwrites the record at the address. sc records which consent scope
// authorized the write.
func (s *Service) Store(ctx context.Context, userID, agentID, recordType, recordID string, plaintext []byte, sc scope.Scope) (*model.VaultRecord, error) {
	if err := validateAddress(userID, agentID, recordType, recordID); err != nil {
		return nil, err
	}
	if !scope.Known(sc) {
		return nil, fmt.Errorf("scope %q: %w", sc, errs.ErrUnknownScope)
	}
	key, err := vaultcrypto.DeriveRecordKey(s.masterKey, userID, agentID)
	if err != nil {
		return nil, err
	}
	ciphertext, iv, tag, err := vaultcrypto.Encrypt(s.algorithm, key, plaintext, aad(userID, agentID, recordType, recordID))
	if err != nil {
		return nil, err
	}
	rec := &model.VaultRecord{
		UserID:     userID,
		AgentID:    agentID,
		RecordType: recordType,
		RecordID:   recordID,
		Scope:      sc,
		Ciphertext: ciphertext,
		IV:         iv,
		Tag:        tag,
		Algorithm:  s.algorithm,
	}
	stored, err := s.repo.Upsert(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("vault upsert: %w: %w", errs.ErrBackendUnavailable, err)
	}
	return stored, nil
}

// Retrieve decrypts and returns the plaintext at the address. A missing record
// is ErrNotFound; a record that fails authenticated decryption is
// ErrVaultIntegrity and is never converted to a miss.
func (s *Service) Retrieve(ctx context.Context, userID, agentID, recordType, recordID string) ([]byte, *model.VaultRecord, error) {
	if err := validateAddress(userID, agentID, recordType, recordID); err != nil {
		return nil, nil, err
	}
	rec, err := s.repo.Get(ctx, userID, agentID, recordType, recordID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("vault get: %w: %w", errs.ErrBackendUnavailable, err)
	}
	key, err := vaultcrypto.DeriveRecordKey(s.masterKey, userID, agentID)
	if err != nil {
		return nil, nil, err
	}
	plaintext, err := vaultcrypto.Decrypt(rec.Algorithm, key, rec.Ciphertext, rec.IV, rec.Tag, aad(userID, agentID, recordType, recordID))
	if err != nil {
		return nil, nil, err
	}
	return plaintext, rec, nil
}

// Delete removes the record at the address. Idempotent.
func (s *Service) Delete(ctx context.Context, userID, agentID, recordType, recordID string) error {
	if err := validateAddress(userID, agentID, recordType, recordID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID, agentID, recordType, recordID); err != nil {
		return fmt.Errorf("vault delete: %w: %w", errs.ErrBackendUnavailable, err)
	}
	return nil
}
