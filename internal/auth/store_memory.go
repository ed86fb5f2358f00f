package auth

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/ledgerbridge/internal/models"
)

type MemoryKeyStore struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]models.APIKey
	byHash map[string]uuid.UUID
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{
		byID:   make(map[uuid.UUID]models.APIKey),
		byHash: make(map[string]uuid.UUID),
	}
}

func (s *MemoryKeyStore) Create(_ context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(key)
}

func (s *MemoryKeyStore) insertLocked(key *models.APIKey) error {
	if _, exists := s.byHash[key.KeyHash]; exists {
		return fmt.Errorf("create api key: duplicate hash")
	}
	s.byID[key.ID] = *key
	s.byHash[key.KeyHash] = key.ID
	return nil
}

func (s *MemoryKeyStore) GetByHash(_ context.Context, hash string) (*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[hash]
	if !ok {
		return nil, ErrKeyNotFound
	}
	k := s.byID[id]
	return &k, nil
}

func (s *MemoryKeyStore) GetByID(_ context.Context, id uuid.UUID) (*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.byID[id]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return &k, nil
}

func (s *MemoryKeyStore) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.APIKey
	for _, k := range s.byID {
		if k.TenantID != nil && *k.TenantID == tenantID {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryKeyStore) Rotate(_ context.Context, oldID uuid.UUID, graceEndsAt time.Time, next *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byID[oldID]
	if !ok {
		return ErrKeyNotFound
	}
	if old.GracePeriodEndsAt != nil {
		return ErrKeyRotated
	}
	if err := s.insertLocked(next); err != nil {
		return err
	}
	old.GracePeriodEndsAt = &graceEndsAt
	s.byID[oldID] = old
	return nil
}

func (s *MemoryKeyStore) Revoke(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.byID[id]
	if !ok {
		return ErrKeyNotFound
	}
	k.IsActive = false
	k.RevokedAt = &at
	s.byID[id] = k
	return nil
}

func (s *MemoryKeyStore) TouchLastUsed(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.byID[id]
	if !ok {
		return ErrKeyNotFound
	}
	k.LastUsedAt = &at
	s.byID[id] = k
	return nil
}
