package otps

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

// MemoryRepository keeps records in a map guarded by a mutex. It applies the
// same conditional semantics as the Postgres queries.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]models.OTP
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]models.OTP)}
}

// Lock only honours cancellation. Each memory operation is atomic on its own,
// but issuance is not serialized across operations.
func (r *MemoryRepository) Lock(ctx context.Context, subject string) error {
	return ctx.Err()
}

func (r *MemoryRepository) DeleteUnused(ctx context.Context, subject string, purpose *models.Purpose) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, o := range r.records {
		if o.Subject != subject || o.UsedAt != nil {
			continue
		}
		if purpose != nil && o.Purpose != *purpose {
			continue
		}
		delete(r.records, id)
		n++
	}
	return n, nil
}

func (r *MemoryRepository) Create(ctx context.Context, otp *models.OTP) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[otp.ID]; ok {
		return common.ErrorAlreadyExists
	}
	r.records[otp.ID] = *otp
	return nil
}

func (r *MemoryRepository) Consume(ctx context.Context, subject, codeHash string, purpose models.Purpose, now time.Time) (*models.OTP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, o := range r.records {
		if o.Subject != subject || o.CodeHash != codeHash || o.Purpose != purpose || !o.IsLive(now) {
			continue
		}
		used := now
		o.UsedAt = &used
		r.records[id] = o
		return &o, nil
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) DeleteStale(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, o := range r.records {
		if o.UsedAt != nil || !o.ExpiresAt.After(now) {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

// All returns a snapshot of stored records.
func (r *MemoryRepository) All() []models.OTP {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.OTP, 0, len(r.records))
	for _, o := range r.records {
		out = append(out, o)
	}
	return out
}
