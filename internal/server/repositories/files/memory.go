package files

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

type MemoryRepository struct {
	mu    sync.Mutex
	files map[string]models.File
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{files: make(map[string]models.File)}
}

func (r *MemoryRepository) Create(ctx context.Context, f *models.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.files[f.ID]; ok {
		return common.ErrorAlreadyExists
	}
	r.files[f.ID] = *f
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.files[id]
	if !ok || f.IsDeleted {
		return nil, common.ErrorNotFound
	}
	return &f, nil
}

func (r *MemoryRepository) filter(keep func(models.File) bool) []models.File {
	var out []models.File
	for _, f := range r.files {
		if !f.IsDeleted && keep(f) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *MemoryRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.filter(func(f models.File) bool { return f.OwnerID == ownerID }), nil
}

func (r *MemoryRepository) ListAll(ctx context.Context, limit, offset int) ([]models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.filter(func(models.File) bool { return true })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) MarkDeleted(ctx context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.files[id]
	if !ok || f.IsDeleted {
		return common.ErrorNotFound
	}
	f.IsDeleted = true
	f.UpdatedAt = now
	r.files[id] = f
	return nil
}

// Len counts all records, soft-deleted included.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files)
}
