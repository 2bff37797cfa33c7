package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/otps"
	"github.com/pressly/goose/v3"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestPostgresRepositoryManager_ImplementsInterface(t *testing.T) {
	var _ RepositoryManager = NewPostgresRepositoryManager()
	var _ RepositoryManager = NewMemoryRepositoryManager()
}

func TestFactories_ReturnConcreteRepos(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	m := NewPostgresRepositoryManager()

	if _, ok := m.OTPs(db).(*otps.PostgresRepository); !ok {
		t.Fatal("OTPs() is not a postgres repository")
	}
	for name, repo := range map[string]any{
		"AuditLog":   m.AuditLog(db),
		"Nodes":      m.Nodes(db),
		"Files":      m.Files(db),
		"Replicas":   m.Replicas(db),
		"ShareLinks": m.ShareLinks(db),
		"Profiles":   m.Profiles(db),
	} {
		if repo == nil {
			t.Fatalf("%s() nil", name)
		}
	}
}

func TestMemoryRepositoryManager_SharesStateAcrossHandles(t *testing.T) {
	m := NewMemoryRepositoryManager()
	db, _ := newDB(t)
	defer db.Close()

	if m.OTPs(nil) != m.OTPs(db) {
		t.Fatal("memory manager must return the same OTP repository")
	}
	if err := m.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
}

func TestRunMigrations_Success(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if dir != "." {
			return errors.New("unexpected dir")
		}
		if len(opts) != 0 {
			return errors.New("unexpected opts")
		}
		return nil
	}
	defer func() { gooseUpContext = orig }()

	if err := NewPostgresRepositoryManager().RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("RunMigrations error: %v", err)
	}
}

func TestRunMigrations_Error(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	defer func() { gooseUpContext = orig }()

	if err := NewPostgresRepositoryManager().RunMigrations(context.Background(), db); err == nil || err.Error() != "boom" {
		t.Fatalf("expected boom, got %v", err)
	}
}
