// Package replicas persists replica bookkeeping records.
package replicas

import (
	"context"

	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, replica *models.FileReplica) error
	ListByFile(ctx context.Context, fileID string) ([]models.FileReplica, error)
}
