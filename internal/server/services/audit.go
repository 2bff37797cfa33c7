package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/logging"
	"github.com/dmitrijs2005/cloudvault/internal/server/metrics"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"github.com/mssola/user_agent"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 500

	maxPendingPublishes = 64
	publishTimeout      = 2 * time.Second
)

// Publisher forwards persisted audit events to an external consumer.
type Publisher interface {
	Publish(ctx context.Context, e models.AuditEvent) error
}

// AuditEntry is what callers know about an action. Empty strings are stored
// as NULL.
type AuditEntry struct {
	Subject       string
	EventType     models.EventType
	Description   string
	OriginAddress string
	UserAgent     string
	Metadata      map[string]any
	Success       bool
}

// AuditService appends audit events. Recording never fails the caller's
// operation and never waits for the broker.
type AuditService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	publisher   Publisher
	logger      logging.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	pending chan struct{}
	wg      sync.WaitGroup
}

// NewAuditService builds the service. publisher may be nil.
func NewAuditService(db *sql.DB, m repomanager.RepositoryManager, publisher Publisher, logger logging.Logger, mtr *metrics.Metrics) *AuditService {
	return &AuditService{
		db:          db,
		repomanager: m,
		publisher:   publisher,
		logger:      logger.With("module", "audit"),
		metrics:     mtr,
		now:         time.Now,
		pending:     make(chan struct{}, maxPendingPublishes),
	}
}

// Record stores the event synchronously and publishes it in the background. A
// storage failure is logged and counted, then dropped.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) {
	event := models.AuditEvent{
		ID:            uuid.NewString(),
		Subject:       optional(entry.Subject),
		EventType:     entry.EventType,
		Description:   entry.Description,
		OriginAddress: optional(entry.OriginAddress),
		UserAgent:     optional(entry.UserAgent),
		Metadata:      withClientInfo(entry.Metadata, entry.UserAgent),
		Success:       entry.Success,
		CreatedAt:     s.now().UTC(),
	}

	if err := s.repomanager.AuditLog(s.db).Create(ctx, &event); err != nil {
		s.metrics.AuditWriteFailures.Inc()
		s.logger.Error(ctx, "failed to write audit event", "event_type", event.EventType, "error", err)
		return
	}

	if s.publisher != nil {
		s.publish(ctx, event)
	}
}

// publish hands a stored event to the publisher in the background. Events
// beyond maxPendingPublishes in flight are dropped and counted as errors.
func (s *AuditService) publish(ctx context.Context, event models.AuditEvent) {
	select {
	case s.pending <- struct{}{}:
	default:
		s.metrics.AuditPublishErrors.Inc()
		s.logger.Warn(ctx, "audit publish backlog full, event dropped", "event_type", event.EventType)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-s.pending }()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()

		if err := s.publisher.Publish(ctx, event); err != nil {
			s.metrics.AuditPublishErrors.Inc()
			s.logger.Warn(ctx, "failed to publish audit event", "event_type", event.EventType, "error", err)
		}
	}()
}

// Flush waits for background publishes to finish.
func (s *AuditService) Flush() {
	s.wg.Wait()
}

// List returns events newest first. Limit defaults to 50 and is capped at 500.
func (s *AuditService) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultAuditPageSize
	}
	if filter.Limit > maxAuditPageSize {
		filter.Limit = maxAuditPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	events, err := s.repomanager.AuditLog(s.db).List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}
	return events, nil
}

// withClientInfo copies metadata and adds the browser and OS parsed from ua.
func withClientInfo(metadata map[string]any, ua string) map[string]any {
	out := make(map[string]any, len(metadata)+3)
	for k, v := range metadata {
		out[k] = v
	}
	if ua == "" {
		return out
	}

	parsed := user_agent.New(ua)
	if name, version := parsed.Browser(); name != "" {
		out["browser"] = name
		if version != "" {
			out["browser_version"] = version
		}
	}
	if os := parsed.OS(); os != "" {
		out["os"] = os
	}
	if parsed.Mobile() {
		out["mobile"] = true
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
