package corpus

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/PaliC/popcorn-data-utils/pkg/errors"
)

// CreateAPIKey generates a new ingestion credential, stores its hash, and
// returns the raw secret. The secret is returned exactly once; only the
// SHA-256 hash is kept.
func (s *Store) CreateAPIKey(ctx context.Context, name string) (APIKey, string, error) {
	secret := generateSecret()
	key := APIKey{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO api_keys (id, name, key_hash, created_at) VALUES ($1, $2, $3, $4)`,
		key.ID, key.Name, HashKey(secret), key.CreatedAt,
	)
	if err != nil {
		return APIKey{}, "", fmt.Errorf("creating api key: %w", err)
	}

	s.logger.Info("api key created", "key_id", key.ID, "name", name)
	return key, secret, nil
}

// VerifyAPIKey checks a presented secret against the stored hashes. Unknown
// and revoked keys both yield ErrUnauthorized.
func (s *Store) VerifyAPIKey(ctx context.Context, secret string) (*APIKey, error) {
	var key APIKey
	var revokedAt sql.NullTime

	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, name, created_at, revoked_at FROM api_keys WHERE key_hash = $1`,
		HashKey(secret),
	).Scan(&key.ID, &key.Name, &key.CreatedAt, &revokedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	if revokedAt.Valid {
		return nil, apperrors.ErrUnauthorized
	}

	return &key, nil
}

// RevokeAPIKey revokes a key by its ID. Revocation is idempotent on an
// already-revoked key but a missing key is an error.
func (s *Store) RevokeAPIKey(ctx context.Context, keyID string) error {
	res, err := s.db.DB.ExecContext(ctx,
		`UPDATE api_keys SET revoked_at = COALESCE(revoked_at, NOW()) WHERE id = $1`,
		keyID,
	)
	if err != nil {
		return fmt.Errorf("revoking api key %s: %w", keyID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrKeyNotFound
	}

	s.logger.Info("api key revoked", "key_id", keyID)
	return nil
}

// ListAPIKeys returns every key, newest first, revoked ones included.
func (s *Store) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, name, created_at, revoked_at FROM api_keys ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var key APIKey
		var revokedAt sql.NullTime
		if err := rows.Scan(&key.ID, &key.Name, &key.CreatedAt, &revokedAt); err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		if revokedAt.Valid {
			key.RevokedAt = revokedAt.Time
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// HashKey returns the SHA-256 hex digest of a raw API key secret.
func HashKey(secret string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(secret)))
}

func generateSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
