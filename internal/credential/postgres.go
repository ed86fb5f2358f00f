package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
)

const credentialColumns = `tenant_id, realm_id, access_token, refresh_token, access_token_expires_at,
	refresh_token_expires_at, status, is_active, last_sync_at, created_at, updated_at`

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetActiveCredential(ctx context.Context, tenantID uuid.UUID) (*models.Credential, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+credentialColumns+` FROM oauth_credentials WHERE tenant_id = $1 AND is_active = true`, tenantID)
	return scanCredential(row)
}

func (s *PostgresStore) GetCredential(ctx context.Context, tenantID uuid.UUID) (*models.Credential, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+credentialColumns+` FROM oauth_credentials WHERE tenant_id = $1`, tenantID)
	return scanCredential(row)
}

func (s *PostgresStore) UpdateCredential(ctx context.Context, tenantID uuid.UUID, u models.CredentialUpdate) error {
	var sets []string
	args := []interface{}{tenantID}
	argIdx := 2

	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}
	if u.AccessToken != nil {
		add("access_token", *u.AccessToken)
	}
	if u.RefreshToken != nil {
		add("refresh_token", *u.RefreshToken)
	}
	if u.AccessTokenExpiresAt != nil {
		add("access_token_expires_at", *u.AccessTokenExpiresAt)
	}
	if u.RefreshTokenExpiresAt != nil {
		add("refresh_token_expires_at", *u.RefreshTokenExpiresAt)
	}
	if u.Status != nil {
		add("status", string(*u.Status))
	}
	if u.IsActive != nil {
		add("is_active", *u.IsActive)
	}
	if u.LastSyncAt != nil {
		add("last_sync_at", *u.LastSyncAt)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = now()")

	tag, err := s.db.Exec(ctx,
		"UPDATE oauth_credentials SET "+strings.Join(sets, ", ")+" WHERE tenant_id = $1", args...)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetCredentialsExpiringWithin(ctx context.Context, within time.Duration) ([]models.Credential, error) {
	cutoff := time.Now().Add(within)
	rows, err := s.db.Query(ctx,
		`SELECT `+credentialColumns+` FROM oauth_credentials
		 WHERE is_active = true AND (access_token_expires_at < $1 OR refresh_token_expires_at < $1)
		 ORDER BY tenant_id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query expiring credentials: %w", err)
	}
	defer rows.Close()

	var out []models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Upsert(ctx context.Context, c *models.Credential) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO oauth_credentials (tenant_id, realm_id, access_token, refresh_token, access_token_expires_at,
		     refresh_token_expires_at, status, is_active, last_sync_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (tenant_id) DO UPDATE SET
		     realm_id = EXCLUDED.realm_id,
		     access_token = EXCLUDED.access_token,
		     refresh_token = EXCLUDED.refresh_token,
		     access_token_expires_at = EXCLUDED.access_token_expires_at,
		     refresh_token_expires_at = EXCLUDED.refresh_token_expires_at,
		     status = EXCLUDED.status,
		     is_active = EXCLUDED.is_active,
		     last_sync_at = EXCLUDED.last_sync_at,
		     updated_at = now()`,
		c.TenantID, c.RealmID, c.AccessToken, c.RefreshToken, c.AccessTokenExpiresAt,
		c.RefreshTokenExpiresAt, string(c.Status), c.IsActive, c.LastSyncAt,
	)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}
	return nil
}

func scanCredential(row pgx.Row) (*models.Credential, error) {
	var c models.Credential
	var status string
	err := row.Scan(&c.TenantID, &c.RealmID, &c.AccessToken, &c.RefreshToken, &c.AccessTokenExpiresAt,
		&c.RefreshTokenExpiresAt, &status, &c.IsActive, &c.LastSyncAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	c.Status = models.ConnectionStatus(status)
	return &c, nil
}
