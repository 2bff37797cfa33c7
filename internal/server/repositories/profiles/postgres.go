package profiles

import (
	"context"
	"database/sql"
	"errors"
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

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(s scanner) (*models.Profile, error) {
	var (
		p    models.Profile
		role string
	)
	if err := s.Scan(&p.ID, &p.Email, &role, &p.CreatedAt); err != nil {
		return nil, err
	}
	r, err := models.ParseRole(role)
	if err != nil {
		return nil, err
	}
	p.Role = r
	return &p, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT id, email, role, created_at FROM profiles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Ensure(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	query := `
		INSERT INTO profiles (id, email, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET email = profiles.email
		RETURNING id, email, role, created_at
	`
	out, err := scanProfile(r.db.QueryRowContext(ctx, query, p.ID, p.Email, string(p.Role), p.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) SetRole(ctx context.Context, id string, role models.Role) error {
	res, err := r.db.ExecContext(ctx, `UPDATE profiles SET role = $2 WHERE id = $1`, id, string(role))
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

func (r *PostgresRepository) List(ctx context.Context) ([]models.Profile, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, email, role, created_at FROM profiles ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
