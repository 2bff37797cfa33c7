package replicas

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, rep *models.FileReplica) error {
	query := `
		INSERT INTO file_replicas (id, file_id, node_id, replica_path, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, rep.ID, rep.FileID, rep.NodeID, rep.ReplicaPath, string(rep.Status), rep.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByFile(ctx context.Context, fileID string) ([]models.FileReplica, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, file_id, node_id, replica_path, status, created_at FROM file_replicas WHERE file_id = $1 ORDER BY created_at`, fileID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.FileReplica
	for rows.Next() {
		var (
			rep    models.FileReplica
			status string
		)
		if err := rows.Scan(&rep.ID, &rep.FileID, &rep.NodeID, &rep.ReplicaPath, &status, &rep.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		if rep.Status, err = models.ParseReplicaStatus(status); err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
