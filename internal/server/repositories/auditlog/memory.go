package auditlog

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

type MemoryRepository struct {
	mu     sync.Mutex
	events []models.AuditEvent
	// FailWith, when set, is returned by Create.
	FailWith error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(ctx context.Context, e *models.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailWith != nil {
		return r.FailWith
	}
	r.events = append(r.events, *e)
	return nil
}

func (r *MemoryRepository) List(ctx context.Context, f models.AuditFilter) ([]models.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.AuditEvent
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if f.Subject != "" && (e.Subject == nil || *e.Subject != f.Subject) {
			continue
		}
		if f.EventType != "" && e.EventType != f.EventType {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

// Count returns how many stored events have the given type.
func (r *MemoryRepository) Count(eventType models.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}
