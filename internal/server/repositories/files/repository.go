// Package files persists uploaded file metadata.
package files

import (
	"context"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, file *models.File) error
	// Get returns a file that is not soft-deleted.
	Get(ctx context.Context, id string) (*models.File, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.File, error)
	ListAll(ctx context.Context, limit, offset int) ([]models.File, error)
	MarkDeleted(ctx context.Context, id string, now time.Time) error
}
