package tenant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
)

var ErrNotFound = errors.New("tenant not found")

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	Create(ctx context.Context, name, slug string) (*models.Tenant, error)
}

type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var t models.Tenant
	err := r.db.QueryRow(ctx,
		"SELECT id, name, slug, settings, created_at, updated_at FROM tenants WHERE id = $1", id,
	).Scan(&t.ID, &t.Name, &t.Slug, &t.Settings, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

func (r *PostgresRepository) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	var t models.Tenant
	err := r.db.QueryRow(ctx,
		"SELECT id, name, slug, settings, created_at, updated_at FROM tenants WHERE slug = $1", slug,
	).Scan(&t.ID, &t.Name, &t.Slug, &t.Settings, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant by slug: %w", err)
	}
	return &t, nil
}

func (r *PostgresRepository) Create(ctx context.Context, name, slug string) (*models.Tenant, error) {
	var t models.Tenant
	err := r.db.QueryRow(ctx,
		`INSERT INTO tenants (name, slug) VALUES ($1, $2)
		 RETURNING id, name, slug, settings, created_at, updated_at`,
		name, slug,
	).Scan(&t.ID, &t.Name, &t.Slug, &t.Settings, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	return &t, nil
}

// MemoryRepository backs the mock store backend and tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*models.Tenant
	bySlug map[string]uuid.UUID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[uuid.UUID]*models.Tenant),
		bySlug: make(map[string]uuid.UUID),
	}
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *MemoryRepository) GetBySlug(_ context.Context, slug string) (*models.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bySlug[strings.ToLower(slug)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *MemoryRepository) Create(_ context.Context, name, slug string) (*models.Tenant, error) {
	slug = strings.ToLower(slug)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bySlug[slug]; exists {
		return nil, fmt.Errorf("create tenant: slug %q already exists", slug)
	}
	now := time.Now().UTC()
	t := &models.Tenant{ID: uuid.New(), Name: name, Slug: slug, CreatedAt: now, UpdatedAt: now}
	r.byID[t.ID] = t
	r.bySlug[slug] = t.ID
	cp := *t
	return &cp, nil
}
