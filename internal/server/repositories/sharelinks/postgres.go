package sharelinks

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

const linkColumns = `id, file_id, owner_id, token, permission, expires_at, password_hash, max_downloads, download_count, is_active, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanLink(s scanner) (*models.ShareLink, error) {
	var (
		l            models.ShareLink
		permission   string
		expiresAt    sql.NullTime
		passwordHash sql.NullString
		maxDownloads sql.NullInt64
	)
	if err := s.Scan(&l.ID, &l.FileID, &l.OwnerID, &l.Token, &permission, &expiresAt,
		&passwordHash, &maxDownloads, &l.DownloadCount, &l.IsActive, &l.CreatedAt); err != nil {
		return nil, err
	}

	p, err := models.ParsePermission(permission)
	if err != nil {
		return nil, err
	}
	l.Permission = p

	if expiresAt.Valid {
		t := expiresAt.Time
		l.ExpiresAt = &t
	}
	if passwordHash.Valid {
		h := passwordHash.String
		l.PasswordHash = &h
	}
	if maxDownloads.Valid {
		m := int(maxDownloads.Int64)
		l.MaxDownloads = &m
	}
	return &l, nil
}

func (r *PostgresRepository) Create(ctx context.Context, l *models.ShareLink) error {
	var (
		expiresAt    sql.NullTime
		passwordHash sql.NullString
		maxDownloads sql.NullInt64
	)
	if l.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *l.ExpiresAt, Valid: true}
	}
	if l.PasswordHash != nil {
		passwordHash = sql.NullString{String: *l.PasswordHash, Valid: true}
	}
	if l.MaxDownloads != nil {
		maxDownloads = sql.NullInt64{Int64: int64(*l.MaxDownloads), Valid: true}
	}

	query := `
		INSERT INTO share_links (` + linkColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		l.ID, l.FileID, l.OwnerID, l.Token, string(l.Permission), expiresAt,
		passwordHash, maxDownloads, l.DownloadCount, l.IsActive, l.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.ShareLink, error) {
	l, err := scanLink(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return l, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.ShareLink, error) {
	return r.getOne(ctx, `SELECT `+linkColumns+` FROM share_links WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*models.ShareLink, error) {
	return r.getOne(ctx, `SELECT `+linkColumns+` FROM share_links WHERE token = $1`, token)
}

func (r *PostgresRepository) ListByFile(ctx context.Context, fileID string) ([]models.ShareLink, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM share_links WHERE file_id = $1 ORDER BY created_at DESC`, fileID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.ShareLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) Deactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE share_links SET is_active = false WHERE id = $1`, id)
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

func (r *PostgresRepository) ClaimDownload(ctx context.Context, id string, now time.Time) (*models.ShareLink, error) {
	query := `
		UPDATE share_links SET download_count = download_count + 1
		WHERE id = $1 AND is_active
		  AND (expires_at IS NULL OR expires_at > $2)
		  AND (max_downloads IS NULL OR download_count < max_downloads)
		RETURNING ` + linkColumns
	return r.getOne(ctx, query, id, now)
}

func (r *PostgresRepository) ReleaseDownload(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE share_links SET download_count = GREATEST(download_count - 1, 0) WHERE id = $1`, id)
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
