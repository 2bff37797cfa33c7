package profiles

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

type MemoryRepository struct {
	mu       sync.Mutex
	profiles map[string]models.Profile
}

func NewMemoryRepository(seed ...models.Profile) *MemoryRepository {
	r := &MemoryRepository{profiles: make(map[string]models.Profile)}
	for _, p := range seed {
		r.profiles[p.ID] = p
	}
	return r
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) Ensure(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.profiles[p.ID]; ok {
		return &existing, nil
	}
	r.profiles[p.ID] = *p
	out := *p
	return &out, nil
}

func (r *MemoryRepository) SetRole(ctx context.Context, id string, role models.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[id]
	if !ok {
		return common.ErrorNotFound
	}
	p.Role = role
	r.profiles[id] = p
	return nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
