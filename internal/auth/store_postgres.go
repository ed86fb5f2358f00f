package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
)

const keyColumns = `id, tenant_id, key_hash, key_prefix, name, type, permissions, is_active,
	last_used_at, expires_at, revoked_at, grace_period_ends_at, created_at`

type PostgresKeyStore struct {
	db *pgxpool.Pool
}

func NewPostgresKeyStore(db *pgxpool.Pool) *PostgresKeyStore {
	return &PostgresKeyStore{db: db}
}

func (s *PostgresKeyStore) Create(ctx context.Context, key *models.APIKey) error {
	return insertKey(ctx, s.db, key)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertKey(ctx context.Context, db rowQuerier, key *models.APIKey) error {
	perms, err := json.Marshal(key.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	err = db.QueryRow(ctx,
		`INSERT INTO api_keys (id, tenant_id, key_hash, key_prefix, name, type, permissions, is_active, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		key.ID, key.TenantID, key.KeyHash, key.KeyPrefix, key.Name, string(key.Type), perms, key.IsActive, key.ExpiresAt,
	).Scan(&key.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

func (s *PostgresKeyStore) GetByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	return scanKey(s.db.QueryRow(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE key_hash = $1`, hash))
}

func (s *PostgresKeyStore) GetByID(ctx context.Context, id uuid.UUID) (*models.APIKey, error) {
	return scanKey(s.db.QueryRow(ctx, `SELECT `+keyColumns+` FROM api_keys WHERE id = $1`, id))
}

func (s *PostgresKeyStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.APIKey, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []models.APIKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *k)
	}
	return keys, rows.Err()
}

func (s *PostgresKeyStore) Rotate(ctx context.Context, oldID uuid.UUID, graceEndsAt time.Time, next *models.APIKey) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rotation: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE api_keys SET grace_period_ends_at = $2
		 WHERE id = $1 AND revoked_at IS NULL AND grace_period_ends_at IS NULL`, oldID, graceEndsAt)
	if err != nil {
		return fmt.Errorf("set grace period: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Lost a race with a concurrent rotate or revoke, or the key is gone.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM api_keys WHERE id = $1)`, oldID).Scan(&exists); err != nil {
			return fmt.Errorf("check api key: %w", err)
		}
		if exists {
			return ErrKeyRotated
		}
		return ErrKeyNotFound
	}
	if err := insertKey(ctx, tx, next); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rotation: %w", err)
	}
	return nil
}

func (s *PostgresKeyStore) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE api_keys SET is_active = false, revoked_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func (s *PostgresKeyStore) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

func scanKey(row pgx.Row) (*models.APIKey, error) {
	var k models.APIKey
	var keyType string
	var perms json.RawMessage
	err := row.Scan(&k.ID, &k.TenantID, &k.KeyHash, &k.KeyPrefix, &k.Name, &keyType, &perms, &k.IsActive,
		&k.LastUsedAt, &k.ExpiresAt, &k.RevokedAt, &k.GracePeriodEndsAt, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan api key: %w", err)
	}
	k.Type = models.APIKeyType(keyType)
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &k.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
	}
	return &k, nil
}
