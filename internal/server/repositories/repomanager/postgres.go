package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/cloudvault/internal/dbx"
	"github.com/dmitrijs2005/cloudvault/internal/server/migrations"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/auditlog"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/files"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/nodes"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/otps"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/profiles"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/replicas"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/sharelinks"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repositories and runs
// the embedded goose migrations.
type PostgresRepositoryManager struct{}

func (m *PostgresRepositoryManager) OTPs(db dbx.DBTX) otps.Repository {
	return otps.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) AuditLog(db dbx.DBTX) auditlog.Repository {
	return auditlog.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Nodes(db dbx.DBTX) nodes.Repository {
	return nodes.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Files(db dbx.DBTX) files.Repository {
	return files.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Replicas(db dbx.DBTX) replicas.Repository {
	return replicas.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) ShareLinks(db dbx.DBTX) sharelinks.Repository {
	return sharelinks.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Profiles(db dbx.DBTX) profiles.Repository {
	return profiles.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}
