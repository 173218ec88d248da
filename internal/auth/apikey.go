// Package auth resolves API credentials to acting users. It is the
// identity boundary of the engine: every mutation requires a resolved
// user before any state is touched.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/mbakke/signoff/internal/db"
)

// Key format: signoff_<key id>_<secret>. Only a bcrypt hash of the
// secret is stored.
const keyPrefix = "signoff"

// ErrInvalidAPIKey is returned when a presented key does not resolve to
// a user.
var ErrInvalidAPIKey = errors.New("invalid api key")

// APIKeyManager issues and verifies API keys.
type APIKeyManager struct {
	keys  *db.APIKeyRepository
	users *db.UserRepository
}

// NewAPIKeyManager creates a new APIKeyManager.
func NewAPIKeyManager(keys *db.APIKeyRepository, users *db.UserRepository) *APIKeyManager {
	return &APIKeyManager{keys: keys, users: users}
}

// Issue creates a new API key for a user and returns the plaintext key.
// The plaintext is shown once and cannot be recovered.
func (m *APIKeyManager) Issue(ctx context.Context, userID, name string) (string, error) {
	if _, err := m.users.Get(ctx, userID); err != nil {
		return "", err
	}

	keyID, err := randomToken(8)
	if err != nil {
		return "", err
	}
	secret, err := randomToken(24)
	if err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash api key: %w", err)
	}

	record := &db.APIKey{
		ID:      keyID,
		UserID:  userID,
		Name:    name,
		KeyHash: string(hash),
	}
	if err := m.keys.Create(ctx, record); err != nil {
		return "", err
	}

	return fmt.Sprintf("%s_%s_%s", keyPrefix, keyID, secret), nil
}

// Resolve verifies a presented key and returns the owning user's ID.
func (m *APIKeyManager) Resolve(ctx context.Context, presented string) (string, error) {
	parts := strings.SplitN(presented, "_", 3)
	if len(parts) != 3 || parts[0] != keyPrefix {
		return "", ErrInvalidAPIKey
	}
	keyID, secret := parts[1], parts[2]

	record, err := m.keys.Get(ctx, keyID)
	if errors.Is(err, db.ErrAPIKeyNotFound) {
		return "", ErrInvalidAPIKey
	}
	if err != nil {
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(record.KeyHash), []byte(secret)); err != nil {
		return "", ErrInvalidAPIKey
	}

	// Best effort; a failed touch never rejects the request.
	_ = m.keys.TouchLastUsed(ctx, keyID)

	return record.UserID, nil
}

func randomToken(bytes int) (string, error) {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
