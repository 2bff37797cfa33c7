// Package otps persists one-time passcode records.
package otps

import (
	"context"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

type Repository interface {
	// Lock serializes issuance for a subject until the enclosing transaction ends.
	Lock(ctx context.Context, subject string) error
	// DeleteUnused removes codes of subject that were never used. A nil purpose
	// means every purpose.
	DeleteUnused(ctx context.Context, subject string, purpose *models.Purpose) (int64, error)
	Create(ctx context.Context, otp *models.OTP) error
	// Consume marks the matching live record used at now and returns it.
	// common.ErrorNotFound is returned when no live record matches.
	Consume(ctx context.Context, subject, codeHash string, purpose models.Purpose, now time.Time) (*models.OTP, error)
	// DeleteStale removes used records and records expired at now.
	DeleteStale(ctx context.Context, now time.Time) (int64, error)
}
