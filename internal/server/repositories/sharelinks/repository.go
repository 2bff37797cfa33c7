// Package sharelinks persists file share links.
package sharelinks

import (
	"context"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, link *models.ShareLink) error
	Get(ctx context.Context, id string) (*models.ShareLink, error)
	GetByToken(ctx context.Context, token string) (*models.ShareLink, error)
	ListByFile(ctx context.Context, fileID string) ([]models.ShareLink, error)
	Deactivate(ctx context.Context, id string) error
	// ClaimDownload increments the download counter of a usable link that is
	// under its cap, in one statement. common.ErrorNotFound means the link is
	// inactive, expired or exhausted at now.
	ClaimDownload(ctx context.Context, id string, now time.Time) (*models.ShareLink, error)
	// ReleaseDownload gives back a claim whose transfer never started. The
	// counter does not go below zero.
	ReleaseDownload(ctx context.Context, id string) error
}
