package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// API key repository errors.
var (
	ErrAPIKeyNotFound = errors.New("api key not found")
)

// APIKey is a stored credential granting a user access to the HTTP API.
// Only the bcrypt hash of the secret is persisted.
type APIKey struct {
	ID         string
	UserID     string
	Name       string
	KeyHash    string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// APIKeyRepository handles API key persistence.
type APIKeyRepository struct {
	db *DB
}

// NewAPIKeyRepository creates a new APIKeyRepository.
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create stores a new API key record.
func (r *APIKeyRepository) Create(ctx context.Context, key *APIKey) error {
	if key.ID == "" {
		return fmt.Errorf("api key id is required")
	}
	if key.UserID == "" {
		return fmt.Errorf("api key user id is required")
	}
	if key.KeyHash == "" {
		return fmt.Errorf("api key hash is required")
	}

	key.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, user_id, name, key_hash, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		key.ID,
		key.UserID,
		key.Name,
		key.KeyHash,
		key.CreatedAt.Format(time.RFC3339),
		stringTimePtr(key.LastUsedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert api key: %w", err)
	}
	return nil
}

// Get fetches an API key record by key ID.
func (r *APIKeyRepository) Get(ctx context.Context, id string) (*APIKey, error) {
	var key APIKey
	var createdAt string
	var lastUsedAt sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, key_hash, created_at, last_used_at
		FROM api_keys
		WHERE id = ?
	`, id).Scan(&key.ID, &key.UserID, &key.Name, &key.KeyHash, &createdAt, &lastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}

	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	key.CreatedAt = created

	if lastUsedAt.Valid && lastUsedAt.String != "" {
		parsed, err := parseTime(lastUsedAt.String)
		if err != nil {
			return nil, err
		}
		key.LastUsedAt = &parsed
	}

	return &key, nil
}

// TouchLastUsed records that the key was used. Best effort.
func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx, `
		UPDATE api_keys SET last_used_at = ? WHERE id = ?
	`, now, id)
	if err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}
	return nil
}
