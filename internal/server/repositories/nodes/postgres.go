package nodes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

const nodeColumns = `id, name, capacity, used_space, status, location, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(s scanner) (*models.StorageNode, error) {
	var (
		n        models.StorageNode
		status   string
		location sql.NullString
	)
	if err := s.Scan(&n.ID, &n.Name, &n.Capacity, &n.UsedSpace, &status, &location, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	st, err := models.ParseNodeStatus(status)
	if err != nil {
		return nil, err
	}
	n.Status = st
	if location.Valid {
		l := location.String
		n.Location = &l
	}
	return &n, nil
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]models.StorageNode, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.StorageNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		out = append(out, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]models.StorageNode, error) {
	return r.query(ctx, `SELECT `+nodeColumns+` FROM storage_nodes ORDER BY name`)
}

func (r *PostgresRepository) ListOnline(ctx context.Context, excludeID string, limit int) ([]models.StorageNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM storage_nodes
		WHERE status = 'online' AND ($1 = '' OR id::text <> $1)
		ORDER BY used_space ASC, name ASC`
	if limit > 0 {
		return r.query(ctx, query+` LIMIT $2`, excludeID, limit)
	}
	return r.query(ctx, query, excludeID)
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.StorageNode, error) {
	n, err := scanNode(r.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM storage_nodes WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Create(ctx context.Context, n *models.StorageNode) error {
	query := `
		INSERT INTO storage_nodes (id, name, capacity, used_space, status, location, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	var location sql.NullString
	if n.Location != nil {
		location = sql.NullString{String: *n.Location, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		n.ID, n.Name, n.Capacity, n.UsedSpace, string(n.Status), location, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Update applies the non-nil fields of upd.
func (r *PostgresRepository) Update(ctx context.Context, id string, upd models.NodeUpdate, now time.Time) (*models.StorageNode, error) {
	var status, location sql.NullString
	var capacity sql.NullInt64
	if upd.Status != nil {
		status = sql.NullString{String: string(*upd.Status), Valid: true}
	}
	if upd.Location != nil {
		location = sql.NullString{String: *upd.Location, Valid: true}
	}
	if upd.Capacity != nil {
		capacity = sql.NullInt64{Int64: *upd.Capacity, Valid: true}
	}

	query := `
		UPDATE storage_nodes SET
			status = COALESCE($2, status),
			capacity = COALESCE($3, capacity),
			location = COALESCE($4, location),
			updated_at = $5
		WHERE id = $1
		RETURNING ` + nodeColumns

	n, err := scanNode(r.db.QueryRowContext(ctx, query, id, status, capacity, location, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) AddUsedSpace(ctx context.Context, id string, delta int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE storage_nodes SET used_space = GREATEST(used_space + $2, 0) WHERE id = $1`, id, delta)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) CountOnline(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM storage_nodes WHERE status = 'online'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
