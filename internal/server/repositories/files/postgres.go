package files

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

// PostgresRepository implements file metadata storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const fileColumns = `id, stored_name, original_name, size, mime_type, checksum, owner_id, primary_node_id, storage_path, is_deleted, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*models.File, error) {
	var f models.File
	err := s.Scan(&f.ID, &f.StoredName, &f.OriginalName, &f.Size, &f.MimeType, &f.Checksum,
		&f.OwnerID, &f.PrimaryNodeID, &f.StoragePath, &f.IsDeleted, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *PostgresRepository) Create(ctx context.Context, f *models.File) error {
	query := `
		INSERT INTO files (` + fileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		f.ID, f.StoredName, f.OriginalName, f.Size, f.MimeType, f.Checksum,
		f.OwnerID, f.PrimaryNodeID, f.StoragePath, f.IsDeleted, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.File, error) {
	f, err := scanFile(r.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = $1 AND NOT is_deleted`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]models.File, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var out []models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.File, error) {
	return r.list(ctx, `SELECT `+fileColumns+` FROM files WHERE owner_id = $1 AND NOT is_deleted ORDER BY created_at DESC`, ownerID)
}

func (r *PostgresRepository) ListAll(ctx context.Context, limit, offset int) ([]models.File, error) {
	return r.list(ctx, `SELECT `+fileColumns+` FROM files WHERE NOT is_deleted ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
}

func (r *PostgresRepository) MarkDeleted(ctx context.Context, id string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE files SET is_deleted = true, updated_at = $2 WHERE id = $1 AND NOT is_deleted`, id, now)
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
