// Package nodes persists storage nodes.
package nodes

import (
	"context"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

type Repository interface {
	List(ctx context.Context) ([]models.StorageNode, error)
	// ListOnline returns online nodes ordered by used space, least used first.
	// excludeID, when not empty, is left out. limit <= 0 means no limit.
	ListOnline(ctx context.Context, excludeID string, limit int) ([]models.StorageNode, error)
	Get(ctx context.Context, id string) (*models.StorageNode, error)
	Create(ctx context.Context, node *models.StorageNode) error
	Update(ctx context.Context, id string, upd models.NodeUpdate, now time.Time) (*models.StorageNode, error)
	AddUsedSpace(ctx context.Context, id string, delta int64) error
	CountOnline(ctx context.Context) (int, error)
}
