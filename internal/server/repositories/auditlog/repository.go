// Package auditlog persists audit events.
package auditlog

import (
	"context"

	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, event *models.AuditEvent) error
	// List returns events newest first.
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, error)
}
