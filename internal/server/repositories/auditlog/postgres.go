package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, e *models.AuditEvent) error {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("metadata encode error: %w", err)
	}

	query := `
		INSERT INTO audit_logs (id, subject, event_type, description, origin_address, user_agent, metadata, success, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.ExecContext(ctx, query,
		e.ID, nullString(e.Subject), string(e.EventType), e.Description,
		nullString(e.OriginAddress), nullString(e.UserAgent), raw, e.Success, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, f models.AuditFilter) ([]models.AuditEvent, error) {
	query := `
		SELECT id, subject, event_type, description, origin_address, user_agent, metadata, success, created_at
		FROM audit_logs
		WHERE ($1 = '' OR subject = $1) AND ($2 = '' OR event_type = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.QueryContext(ctx, query, f.Subject, string(f.EventType), f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEvent
	for rows.Next() {
		var (
			e                      models.AuditEvent
			subject, origin, agent sql.NullString
			eventType              string
			raw                    []byte
		)
		if err := rows.Scan(&e.ID, &subject, &eventType, &e.Description, &origin, &agent, &raw, &e.Success, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		if e.EventType, err = models.ParseEventType(eventType); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Metadata); err != nil {
				return nil, fmt.Errorf("metadata decode error: %w", err)
			}
		}
		e.Subject = stringPtr(subject)
		e.OriginAddress = stringPtr(origin)
		e.UserAgent = stringPtr(agent)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
