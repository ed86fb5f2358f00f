package audit

import (
	"context"
	"sort"
	"sync"

	"github.com/nikhilbhutani/ledgerbridge/internal/models"
)

type MemorySink struct {
	mu      sync.RWMutex
	entries []models.AuditLog
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(_ context.Context, entries []models.AuditLog) error {
	s.mu.Lock()
	s.entries = append(s.entries, entries...)
	s.mu.Unlock()
	return nil
}

func (s *MemorySink) Query(_ context.Context, q Query) ([]models.AuditLog, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	s.mu.RLock()
	var out []models.AuditLog
	for _, e := range s.entries {
		if q.TenantID != nil && (e.TenantID == nil || *e.TenantID != *q.TenantID) {
			continue
		}
		if q.Action != "" && e.Action != q.Action {
			continue
		}
		if q.StartDate != nil && e.CreatedAt.Before(*q.StartDate) {
			continue
		}
		if q.EndDate != nil && e.CreatedAt.After(*q.EndDate) {
			continue
		}
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if q.Offset >= len(out) {
		return nil, nil
	}
	out = out[q.Offset:]
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Entries returns a snapshot of everything written so far.
func (s *MemorySink) Entries() []models.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AuditLog(nil), s.entries...)
}
