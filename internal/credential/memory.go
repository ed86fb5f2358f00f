package credential

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
)

// MemoryStore is the mock backend. Reads return copies so callers never
// share mutable state with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	creds map[uuid.UUID]models.Credential
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		creds: make(map[uuid.UUID]models.Credential),
		now:   time.Now,
	}
}

func (s *MemoryStore) GetActiveCredential(ctx context.Context, tenantID uuid.UUID) (*models.Credential, error) {
	c, err := s.GetCredential(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !c.IsActive {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) GetCredential(_ context.Context, tenantID uuid.UUID) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyCredential(c), nil
}

func (s *MemoryStore) UpdateCredential(_ context.Context, tenantID uuid.UUID, u models.CredentialUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[tenantID]
	if !ok {
		return ErrNotFound
	}
	u.Apply(&c)
	c.UpdatedAt = s.now().UTC()
	s.creds[tenantID] = c
	return nil
}

func (s *MemoryStore) GetCredentialsExpiringWithin(_ context.Context, within time.Duration) ([]models.Credential, error) {
	cutoff := s.now().Add(within)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Credential
	for _, c := range s.creds {
		if !c.IsActive {
			continue
		}
		if expiresBefore(c.AccessTokenExpiresAt, cutoff) || expiresBefore(c.RefreshTokenExpiresAt, cutoff) {
			out = append(out, *copyCredential(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TenantID.String() < out[j].TenantID.String()
	})
	return out, nil
}

func (s *MemoryStore) Upsert(_ context.Context, c *models.Credential) error {
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *copyCredential(*c)
	if existing, ok := s.creds[c.TenantID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.creds[c.TenantID] = stored
	return nil
}

func expiresBefore(t *time.Time, cutoff time.Time) bool {
	return t != nil && t.Before(cutoff)
}

func copyCredential(c models.Credential) *models.Credential {
	cp := c
	cp.AccessTokenExpiresAt = copyTime(c.AccessTokenExpiresAt)
	cp.RefreshTokenExpiresAt = copyTime(c.RefreshTokenExpiresAt)
	cp.LastSyncAt = copyTime(c.LastSyncAt)
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
