package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"
)

var (
	// ErrCredentialMissing is returned when a team has no stored admin key.
	ErrCredentialMissing = errors.New("admin credential not configured")
	// ErrDecryptionFailed indicates a wrong secret or tampered ciphertext.
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")
)

// TeamGetter loads teams by id.
type TeamGetter interface {
	GetTeam(ctx context.Context, id string) (*model.Team, error)
}

// CredentialStore resolves a team's decrypted provider admin credential.
type CredentialStore struct {
	teams  TeamGetter
	cipher *Cipher
}

// NewCredentialStore creates a store reading encrypted keys from teams.
func NewCredentialStore(teams TeamGetter, c *Cipher) *CredentialStore {
	return &CredentialStore{teams: teams, cipher: c}
}

// AdminCredential returns the plaintext admin key for teamID. It never
// returns an empty credential without an error.
func (s *CredentialStore) AdminCredential(ctx context.Context, teamID string) (string, error) {
	team, err := s.teams.GetTeam(ctx, teamID)
	if err != nil {
		return "", fmt.Errorf("load team %s: %w", teamID, err)
	}
	if team.EncryptedAdminKey == "" {
		return "", fmt.Errorf("team %s: %w", teamID, ErrCredentialMissing)
	}

	plaintext, err := s.cipher.Decrypt(team.EncryptedAdminKey)
	if err != nil {
		if errors.Is(err, ErrInvalidCiphertext) {
			return "", fmt.Errorf("team %s: %w: %v", teamID, ErrDecryptionFailed, err)
		}
		return "", fmt.Errorf("team %s: %w", teamID, err)
	}
	if plaintext == "" {
		return "", fmt.Errorf("team %s: %w", teamID, ErrCredentialMissing)
	}
	return plaintext, nil
}

// Seal encrypts an admin key for storage on a team.
func (s *CredentialStore) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrCredentialMissing
	}
	return s.cipher.Encrypt(plaintext)
}
