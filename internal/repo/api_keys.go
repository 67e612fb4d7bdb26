package repo

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"demopilot/internal/domain"
)

// HashAPIKey returns a stable SHA-256 hex digest for the provided key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// NewAPIKeySecret returns a random key with the ddp_ prefix.
func NewAPIKeySecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "ddp_" + hex.EncodeToString(buf), nil
}

// CreateAPIKey stores a new key and returns the record plus the plaintext
// secret, which is not retrievable afterwards.
func (r Repo) CreateAPIKey(ctx context.Context, name string, permissions []string) (domain.APIKey, string, error) {
	secret, err := NewAPIKeySecret()
	if err != nil {
		return domain.APIKey{}, "", err
	}
	if permissions == nil {
		permissions = []string{}
	}
	key := domain.APIKey{
		ID:          uuid.NewString(),
		Name:        name,
		KeyHash:     HashAPIKey(secret),
		Permissions: permissions,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.InsertAPIKey(ctx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, secret, nil
}

// InsertAPIKey stores a hashed API key. KeyHash must already contain the hashed value.
func (r Repo) InsertAPIKey(ctx context.Context, key domain.APIKey) error {
	if key.ID == "" {
		return errors.New("id required")
	}
	if key.KeyHash == "" {
		return errors.New("key_hash required")
	}
	if key.CreatedAt == "" {
		key.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	perms, err := json.Marshal(key.Permissions)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO api_keys(id, name, key_hash, permissions_json, created_at) VALUES (?,?,?,?,?)`,
		key.ID, nullable(key.Name), key.KeyHash, string(perms), key.CreatedAt)
	return err
}

// GetAPIKeyByHash returns an API key by its hashed value.
func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id, COALESCE(name,''), key_hash, permissions_json, created_at FROM api_keys WHERE key_hash=? LIMIT 1`, hash)
	var (
		key   domain.APIKey
		perms string
	)
	err := row.Scan(&key.ID, &key.Name, &key.KeyHash, &perms, &key.CreatedAt)
	if err == sql.ErrNoRows {
		return domain.APIKey{}, ErrNotFound
	}
	if err != nil {
		return domain.APIKey{}, err
	}
	if err := json.Unmarshal([]byte(perms), &key.Permissions); err != nil {
		return domain.APIKey{}, err
	}
	return key, nil
}

// ListAPIKeys returns stored keys, newest first.
func (r Repo) ListAPIKeys(ctx context.Context) ([]domain.APIKey, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, COALESCE(name,''), key_hash, permissions_json, created_at FROM api_keys ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.APIKey{}
	for rows.Next() {
		var (
			key   domain.APIKey
			perms string
		)
		if err := rows.Scan(&key.ID, &key.Name, &key.KeyHash, &perms, &key.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(perms), &key.Permissions); err != nil {
			return nil, err
		}
		res = append(res, key)
	}
	return res, rows.Err()
}

// DeleteAPIKey removes a key by id.
func (r Repo) DeleteAPIKey(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM api_keys WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
