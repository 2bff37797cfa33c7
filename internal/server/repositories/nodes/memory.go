package nodes

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
	nodes map[string]models.StorageNode
}

func NewMemoryRepository(seed ...models.StorageNode) *MemoryRepository {
	r := &MemoryRepository{nodes: make(map[string]models.StorageNode)}
	for _, n := range seed {
		r.nodes[n.ID] = n
	}
	return r
}

func (r *MemoryRepository) List(ctx context.Context) ([]models.StorageNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.StorageNode, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) ListOnline(ctx context.Context, excludeID string, limit int) ([]models.StorageNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.StorageNode
	for _, n := range r.nodes {
		if n.Status != models.NodeOnline || (excludeID != "" && n.ID == excludeID) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UsedSpace != out[j].UsedSpace {
			return out[i].UsedSpace < out[j].UsedSpace
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*models.StorageNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &n, nil
}

func (r *MemoryRepository) Create(ctx context.Context, node *models.StorageNode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range r.nodes {
		if n.Name == node.Name || n.ID == node.ID {
			return common.ErrorAlreadyExists
		}
	}
	r.nodes[node.ID] = *node
	return nil
}

func (r *MemoryRepository) Update(ctx context.Context, id string, upd models.NodeUpdate, now time.Time) (*models.StorageNode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if upd.Status != nil {
		n.Status = *upd.Status
	}
	if upd.Capacity != nil {
		n.Capacity = *upd.Capacity
	}
	if upd.Location != nil {
		l := *upd.Location
		n.Location = &l
	}
	n.UpdatedAt = now
	r.nodes[id] = n
	return &n, nil
}

func (r *MemoryRepository) AddUsedSpace(ctx context.Context, id string, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[id]
	if !ok {
		return common.ErrorNotFound
	}
	n.UsedSpace = max(n.UsedSpace+delta, 0)
	r.nodes[id] = n
	return nil
}

func (r *MemoryRepository) CountOnline(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := 0
	for _, n := range r.nodes {
		if n.Status == models.NodeOnline {
			c++
		}
	}
	return c, nil
}
