package services

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/logging"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

// Deliverer hands a freshly issued code to its recipient.
type Deliverer interface {
	Deliver(ctx context.Context, subject string, purpose models.Purpose, code string, expiresAt time.Time) error
}

// LogDeliverer stands in for an email gateway. It records that a code was
// sent and to whom, never the code itself.
type LogDeliverer struct {
	logger logging.Logger
}

func NewLogDeliverer(logger logging.Logger) *LogDeliverer {
	return &LogDeliverer{logger: logger.With("module", "delivery")}
}

func (d *LogDeliverer) Deliver(ctx context.Context, subject string, purpose models.Purpose, _ string, expiresAt time.Time) error {
	d.logger.Info(ctx, "otp delivered",
		"to", maskSubject(subject),
		"channel", "email",
		"purpose", purpose,
		"expires_at", expiresAt.Format(time.RFC3339),
	)
	return nil
}

// maskSubject keeps the first character of the local part and the domain:
// "alice@example.com" becomes "a***@example.com".
func maskSubject(subject string) string {
	if subject == "" {
		return ""
	}
	local, domain, found := strings.Cut(subject, "@")
	masked := "***"
	if r := []rune(local); len(r) > 0 {
		masked = string(r[0]) + masked
	}
	if found {
		return masked + "@" + domain
	}
	return masked
}
