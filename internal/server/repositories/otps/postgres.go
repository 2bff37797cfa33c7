package otps

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

// PostgresRepository implements OTP storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Lock takes a transaction-scoped advisory lock keyed by the subject. Outside
// a transaction it is released immediately, so callers must run it in one.
func (r *PostgresRepository) Lock(ctx context.Context, subject string) error {
	_, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, subject)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteUnused(ctx context.Context, subject string, purpose *models.Purpose) (int64, error) {
	var (
		res sql.Result
		err error
	)

	if purpose == nil {
		res, err = r.db.ExecContext(ctx,
			`DELETE FROM otps WHERE subject = $1 AND used_at IS NULL`, subject)
	} else {
		res, err = r.db.ExecContext(ctx,
			`DELETE FROM otps WHERE subject = $1 AND purpose = $2 AND used_at IS NULL`, subject, string(*purpose))
	}
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Create(ctx context.Context, otp *models.OTP) error {
	query := `
		INSERT INTO otps (id, subject, code_hash, purpose, created_at, expires_at, origin_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		otp.ID, otp.Subject, otp.CodeHash, string(otp.Purpose), otp.CreatedAt, otp.ExpiresAt, nullString(otp.OriginAddress))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Consume is a single conditional UPDATE, so two concurrent calls with the
// same code cannot both succeed.
func (r *PostgresRepository) Consume(ctx context.Context, subject, codeHash string, purpose models.Purpose, now time.Time) (*models.OTP, error) {
	query := `
		UPDATE otps SET used_at = $4
		WHERE subject = $1 AND code_hash = $2 AND purpose = $3
		  AND used_at IS NULL AND expires_at > $4
		RETURNING id, subject, code_hash, purpose, created_at, expires_at, used_at, origin_address
	`
	otp, err := scanOTP(r.db.QueryRowContext(ctx, query, subject, codeHash, string(purpose), now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return otp, nil
}

func (r *PostgresRepository) DeleteStale(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM otps WHERE used_at IS NOT NULL OR expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

func scanOTP(row *sql.Row) (*models.OTP, error) {
	var (
		otp     models.OTP
		purpose string
		usedAt  sql.NullTime
		origin  sql.NullString
	)
	if err := row.Scan(&otp.ID, &otp.Subject, &otp.CodeHash, &purpose,
		&otp.CreatedAt, &otp.ExpiresAt, &usedAt, &origin); err != nil {
		return nil, err
	}

	p, err := models.ParsePurpose(purpose)
	if err != nil {
		return nil, err
	}
	otp.Purpose = p

	if usedAt.Valid {
		t := usedAt.Time
		otp.UsedAt = &t
	}
	if origin.Valid {
		s := origin.String
		otp.OriginAddress = &s
	}
	return &otp, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
