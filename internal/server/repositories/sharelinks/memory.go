package sharelinks

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
	links map[string]models.ShareLink
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{links: make(map[string]models.ShareLink)}
}

func (r *MemoryRepository) Create(ctx context.Context, l *models.ShareLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.links {
		if existing.ID == l.ID || existing.Token == l.Token {
			return common.ErrorAlreadyExists
		}
	}
	r.links[l.ID] = *l
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*models.ShareLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.links[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &l, nil
}

func (r *MemoryRepository) GetByToken(ctx context.Context, token string) (*models.ShareLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, l := range r.links {
		if l.Token == token {
			return &l, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) ListByFile(ctx context.Context, fileID string) ([]models.ShareLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.ShareLink
	for _, l := range r.links {
		if l.FileID == fileID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) Deactivate(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.links[id]
	if !ok {
		return common.ErrorNotFound
	}
	l.IsActive = false
	r.links[id] = l
	return nil
}

func (r *MemoryRepository) ClaimDownload(ctx context.Context, id string, now time.Time) (*models.ShareLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.links[id]
	if !ok || !l.Usable(now) || l.Exhausted() {
		return nil, common.ErrorNotFound
	}
	l.DownloadCount++
	r.links[id] = l
	return &l, nil
}

func (r *MemoryRepository) ReleaseDownload(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.links[id]
	if !ok {
		return common.ErrorNotFound
	}
	if l.DownloadCount > 0 {
		l.DownloadCount--
		r.links[id] = l
	}
	return nil
}
