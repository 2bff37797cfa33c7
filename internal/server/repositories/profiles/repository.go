// Package profiles persists the local mirror of identity-provider users.
package profiles

import (
	"context"

	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, id string) (*models.Profile, error)
	// Ensure creates the profile when absent and returns the stored row.
	// An existing role is never changed.
	Ensure(ctx context.Context, p *models.Profile) (*models.Profile, error)
	SetRole(ctx context.Context, id string, role models.Role) error
	List(ctx context.Context) ([]models.Profile, error)
}
