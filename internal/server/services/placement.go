package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/logging"
	"github.com/dmitrijs2005/cloudvault/internal/server/metrics"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// PlacementService picks storage nodes for uploads. Replicas are bookkeeping
// records only; no bytes are copied to secondary nodes.
type PlacementService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	logger       logging.Logger
	metrics      *metrics.Metrics
	replicaCount int
	now          func() time.Time
}

func NewPlacementService(db *sql.DB, m repomanager.RepositoryManager, replicaCount int, logger logging.Logger, mtr *metrics.Metrics) *PlacementService {
	return &PlacementService{
		db:           db,
		repomanager:  m,
		logger:       logger.With("module", "placement"),
		metrics:      mtr,
		replicaCount: replicaCount,
		now:          time.Now,
	}
}

// SelectPrimary returns the online node with the least used space.
func (s *PlacementService) SelectPrimary(ctx context.Context) (*models.StorageNode, error) {
	nodes, err := s.repomanager.Nodes(s.db).ListOnline(ctx, "", 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}
	if len(nodes) == 0 {
		s.metrics.PlacementFailures.Inc()
		s.logger.Warn(ctx, "no online storage nodes")
		return nil, common.ErrorNoNodes
	}

	s.logger.Debug(ctx, "primary node selected", "node", nodes[0].Name, "used_space", nodes[0].UsedSpace)
	return &nodes[0], nil
}

// SelectReplicas records up to the configured number of replicas of fileID on
// online nodes other than primaryID. Fewer replicas, or none, is not an error.
func (s *PlacementService) SelectReplicas(ctx context.Context, fileID, primaryID string) ([]models.FileReplica, error) {
	return s.selectReplicas(ctx, s.db, fileID, primaryID)
}

func (s *PlacementService) selectReplicas(ctx context.Context, db dbx.DBTX, fileID, primaryID string) ([]models.FileReplica, error) {
	if s.replicaCount <= 0 {
		return nil, nil
	}

	nodes, err := s.repomanager.Nodes(db).ListOnline(ctx, primaryID, s.replicaCount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
	}

	repo := s.repomanager.Replicas(db)
	now := s.now().UTC()
	out := make([]models.FileReplica, 0, len(nodes))
	for _, n := range nodes {
		r := models.FileReplica{
			ID:          uuid.NewString(),
			FileID:      fileID,
			NodeID:      n.ID,
			ReplicaPath: ReplicaPath(n.Name, fileID),
			Status:      models.ReplicaSynced,
			CreatedAt:   now,
		}
		if err := repo.Create(ctx, &r); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrorStorage, err)
		}
		out = append(out, r)
	}

	if len(out) < s.replicaCount {
		s.logger.Info(ctx, "file under-replicated", "file_id", fileID, "replicas", len(out), "wanted", s.replicaCount)
	}
	return out, nil
}

func ReplicaPath(nodeName, fileID string) string {
	return "replicas/" + nodeName + "/" + fileID
}
