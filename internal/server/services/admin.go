package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/logging"
	"github.com/dmitrijs2005/cloudvault/internal/server/metrics"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cloudvault/internal/server/validation"
	"github.com/google/uuid"
)

type CreateNodeRequest struct {
	Name     string `validate:"required,max=100"`
	Capacity int64  `validate:"gt=0"`
	Status   string `validate:"omitempty,nodestatus"`
	Location string `validate:"max=255"`
}

type UpdateNodeRequest struct {
	Status   *string `validate:"omitempty,nodestatus"`
	Capacity *int64  `validate:"omitempty,gt=0"`
	Location *string `validate:"omitempty,max=255"`
}

// AdminService backs the administrator screens. Callers are expected to pass
// Authorize first; the remaining methods do not check roles again.
type AdminService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	audit       *AuditService
	validator   *validation.Validator
	logger      logging.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewAdminService(db *sql.DB, m repomanager.RepositoryManager, audit *AuditService, logger logging.Logger, mtr *metrics.Metrics) *AdminService {
	return &AdminService{
		db:          db,
		repomanager: m,
		audit:       audit,
		validator:   validation.NewValidator(),
		logger:      logger.With("module", "admin"),
		metrics:     mtr,
		now:         time.Now,
	}
}

// Authorize admits subjects whose profile has the admin role. Each call
// records exactly one admin_access or admin_access_denied event.
func (s *AdminService) Authorize(ctx context.Context, subject, resource, originAddress, userAgent string) error {
	entry := AuditEntry{
		Subject:       subject,
		OriginAddress: originAddress,
		UserAgent:     userAgent,
		Metadata:      map[string]any{"resource": resource},
	}

	profile, err := s.repomanager.Profiles(s.db).Get(ctx, subject)
	switch {
	case err == nil && profile.Role == models.RoleAdmin:
		entry.EventType = models.EventAdminAccess
		entry.Description = "Admin access granted"
		entry.Success = true
		s.audit.Record(ctx, entry)
		return nil
	case err == nil, errors.Is(err, common.ErrorNotFound):
		entry.EventType = models.EventAdminAccessDenied
		entry.Description = "Admin access denied"
		s.audit.Record(ctx, entry)
		return common.ErrorForbidden
	default:
		entry.EventType = models.EventAdminAccessDenied
		entry.Description = "Admin access denied: role lookup failed"
		entry.Metadata["reason"] = "storage_error"
		s.audit.Record(ctx, entry)
		return fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}
}

func (s *AdminService) ListNodes(ctx context.Context) ([]models.StorageNode, error) {
	nodes, err := s.repomanager.Nodes(s.db).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}
	return nodes, nil
}

func (s *AdminService) CreateNode(ctx context.Context, actor string, req CreateNodeRequest) (*models.StorageNode, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	status := models.NodeOnline
	if req.Status != "" {
		status = models.NodeStatus(req.Status)
	}

	now := s.now().UTC()
	node := &models.StorageNode{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Capacity:  req.Capacity,
		Status:    status,
		Location:  optional(req.Location),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.repomanager.Nodes(s.db).Create(ctx, node)
	if errors.Is(err, common.ErrorAlreadyExists) {
		return nil, fmt.Errorf("%w: node %q already exists", common.ErrorValidation, req.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}

	s.audit.Record(ctx, AuditEntry{
		Subject:     actor,
		EventType:   models.EventNodeUpdated,
		Description: fmt.Sprintf("Node %s created", node.Name),
		Metadata:    map[string]any{"node_id": node.ID, "action": "create", "status": string(node.Status)},
		Success:     true,
	})
	s.RefreshNodeGauge(ctx)
	return node, nil
}

func (s *AdminService) UpdateNode(ctx context.Context, actor, id string, req UpdateNodeRequest) (*models.StorageNode, error) {
	if !validID(id) {
		return nil, common.ErrorNotFound
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	upd := models.NodeUpdate{Capacity: req.Capacity, Location: req.Location}
	changes := map[string]any{}
	if req.Status != nil {
		st := models.NodeStatus(*req.Status)
		upd.Status = &st
		changes["status"] = *req.Status
	}
	if req.Capacity != nil {
		changes["capacity"] = *req.Capacity
	}
	if req.Location != nil {
		changes["location"] = *req.Location
	}
	if len(changes) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", common.ErrorValidation)
	}

	var node *models.StorageNode
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		node, err = s.repomanager.Nodes(tx).Update(ctx, id, upd, s.now().UTC())
		return err
	})
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}

	s.audit.Record(ctx, AuditEntry{
		Subject:     actor,
		EventType:   models.EventNodeUpdated,
		Description: fmt.Sprintf("Node %s updated", node.Name),
		Metadata:    map[string]any{"node_id": node.ID, "action": "update", "changes": changes},
		Success:     true,
	})
	s.RefreshNodeGauge(ctx)
	return node, nil
}

// RefreshNodeGauge publishes the number of online nodes. It returns the count,
// or -1 when it could not be read.
func (s *AdminService) RefreshNodeGauge(ctx context.Context) int {
	n, err := s.repomanager.Nodes(s.db).CountOnline(ctx)
	if err != nil {
		s.logger.Warn(ctx, "failed to count online nodes", "error", err)
		return -1
	}
	s.metrics.NodesOnline.Set(float64(n))
	return n
}

func (s *AdminService) ListAudit(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, error) {
	return s.audit.List(ctx, filter)
}

func (s *AdminService) ListFiles(ctx context.Context, limit, offset int) ([]models.File, error) {
	if limit <= 0 || limit > maxAuditPageSize {
		limit = defaultAuditPageSize
	}
	if offset < 0 {
		offset = 0
	}
	files, err := s.repomanager.Files(s.db).ListAll(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}
	return files, nil
}

func (s *AdminService) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	profiles, err := s.repomanager.Profiles(s.db).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}
	return profiles, nil
}

func (s *AdminService) SetRole(ctx context.Context, actor, id, role string) error {
	r, err := models.ParseRole(role)
	if err != nil {
		return err
	}
	err = s.repomanager.Profiles(s.db).SetRole(ctx, id, r)
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrorNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}
	s.logger.Info(ctx, "role changed", "actor", actor, "profile", id, "role", r)
	return nil
}
