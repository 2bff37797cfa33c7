package files

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/google/go-cmp/cmp"
)

var cols = []string{"id", "stored_name", "original_name", "size", "mime_type", "checksum", "owner_id", "primary_node_id", "storage_path", "is_deleted", "created_at", "updated_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func sample(now time.Time) models.File {
	return models.File{
		ID: "f-1", StoredName: "u.bin", OriginalName: "report.pdf", Size: 42, MimeType: "application/pdf",
		Checksum: "abc", OwnerID: "alice", PrimaryNodeID: "n-1", StoragePath: "nodes/alpha/users/alice/2024/5/1/u.bin",
		CreatedAt: now, UpdatedAt: now,
	}
}

func TestCreate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	f := sample(now)

	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+files\s*\(id,.*updated_at\)\s*VALUES\s*\(\$1,.*\$12\)\s*$`).
		WithArgs(f.ID, f.StoredName, f.OriginalName, f.Size, f.MimeType, f.Checksum, f.OwnerID, f.PrimaryNodeID, f.StoragePath, false, now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), &f); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGet(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	q := `(?s)SELECT\s+id,.*FROM\s+files\s+WHERE\s+id\s*=\s*\$1\s+AND\s+NOT\s+is_deleted$`

	t.Run("found", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		want := sample(now)
		mock.ExpectQuery(q).WithArgs("f-1").WillReturnRows(sqlmock.NewRows(cols).AddRow(
			want.ID, want.StoredName, want.OriginalName, want.Size, want.MimeType, want.Checksum,
			want.OwnerID, want.PrimaryNodeID, want.StoragePath, false, now, now))

		got, err := repo.Get(context.Background(), "f-1")
		if err != nil {
			t.Fatalf("Get error: %v", err)
		}
		if diff := cmp.Diff(want, *got); diff != "" {
			t.Fatalf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

		if _, err := repo.Get(context.Background(), "ghost"); !errors.Is(err, common.ErrorNotFound) {
			t.Fatalf("want ErrorNotFound, got %v", err)
		}
	})
}

func TestListByOwner(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`(?s)FROM\s+files\s+WHERE\s+owner_id\s*=\s*\$1\s+AND\s+NOT\s+is_deleted\s+ORDER\s+BY\s+created_at\s+DESC`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("f-2", "b", "b.txt", int64(1), "text/plain", "x", "alice", "n-1", "p2", false, now, now).
			AddRow("f-1", "a", "a.txt", int64(2), "text/plain", "y", "alice", "n-1", "p1", false, now, now))

	got, err := repo.ListByOwner(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ListByOwner error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "f-2" {
		t.Fatalf("unexpected files: %+v", got)
	}
}

func TestListAll_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+files`).WithArgs(10, 0).WillReturnError(errors.New("db down"))

	_, err := repo.ListAll(context.Background(), 10, 0)
	if err == nil || !regexp.MustCompile(`failed to select files: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestMarkDeleted(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	q := `UPDATE\s+files\s+SET\s+is_deleted\s*=\s*true,\s*updated_at\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1\s+AND\s+NOT\s+is_deleted`
	mock.ExpectExec(q).WithArgs("f-1", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("f-1", now).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.MarkDeleted(context.Background(), "f-1", now); err != nil {
		t.Fatalf("MarkDeleted error: %v", err)
	}
	if err := repo.MarkDeleted(context.Background(), "f-1", now); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("second delete: want ErrorNotFound, got %v", err)
	}
}
