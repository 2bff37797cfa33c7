package replicas

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

type MemoryRepository struct {
	mu       sync.Mutex
	replicas []models.FileReplica
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(ctx context.Context, rep *models.FileReplica) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.replicas {
		if existing.FileID == rep.FileID && existing.NodeID == rep.NodeID {
			return common.ErrorAlreadyExists
		}
	}
	r.replicas = append(r.replicas, *rep)
	return nil
}

func (r *MemoryRepository) ListByFile(ctx context.Context, fileID string) ([]models.FileReplica, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.FileReplica
	for _, rep := range r.replicas {
		if rep.FileID == fileID {
			out = append(out, rep)
		}
	}
	return out, nil
}
