package tenant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/ledgerbridge/internal/cache"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
)

// Service resolves tenants, caching slug lookups for ttl.
type Service struct {
	repo  Repository
	cache cache.Cache
	ttl   time.Duration
}

func NewService(repo Repository, c cache.Cache, ttl time.Duration) *Service {
	return &Service{repo: repo, cache: c, ttl: ttl}
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, ErrNotFound
	}
	key := "tenant:slug:" + slug

	if s.cache != nil {
		var t models.Tenant
		err := s.cache.Get(ctx, key, &t)
		if err == nil {
			return &t, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			slog.Warn("tenant cache read failed", "slug", slug, "error", err)
		}
	}

	t, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, t, s.ttl); err != nil {
			slog.Warn("tenant cache write failed", "slug", slug, "error", err)
		}
	}
	return t, nil
}

func (s *Service) Create(ctx context.Context, name, slug string) (*models.Tenant, error) {
	t, err := s.repo.Create(ctx, name, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, "tenant:slug:"+t.Slug)
	}
	return t, nil
}
