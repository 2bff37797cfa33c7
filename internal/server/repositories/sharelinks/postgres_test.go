package sharelinks

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/cloudvault/internal/common"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cols = []string{"id", "file_id", "owner_id", "token", "permission", "expires_at", "password_hash", "max_downloads", "download_count", "is_active", "created_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresRepository(db), mock, db
}

func TestCreate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	one := 1
	l := &models.ShareLink{ID: "s-1", FileID: "f-1", OwnerID: "alice", Token: "tok", Permission: models.PermissionDownload,
		MaxDownloads: &one, IsActive: true, CreatedAt: now}

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+share_links\s*\(id,.*created_at\)\s*VALUES`).
		WithArgs("s-1", "f-1", "alice", "tok", "download", nil, nil, int64(1), 0, true, now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Create(context.Background(), l))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByToken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	exp := now.Add(time.Hour)
	mock.ExpectQuery(`FROM\s+share_links\s+WHERE\s+token\s*=\s*\$1`).
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("s-1", "f-1", "alice", "tok", "view", exp, "$2a$hash", int64(3), 1, true, now))
	mock.ExpectQuery(`FROM\s+share_links\s+WHERE\s+token\s*=\s*\$1`).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	got, err := repo.GetByToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, models.PermissionView, got.Permission)
	require.NotNil(t, got.MaxDownloads)
	assert.Equal(t, 3, *got.MaxDownloads)
	require.NotNil(t, got.PasswordHash)
	require.NotNil(t, got.ExpiresAt)

	_, err = repo.GetByToken(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestClaimDownload(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	q := `(?s)UPDATE\s+share_links\s+SET\s+download_count\s*=\s*download_count\s*\+\s*1\s+WHERE\s+id\s*=\s*\$1\s+AND\s+is_active.*download_count\s*<\s*max_downloads.*RETURNING`
	mock.ExpectQuery(q).WithArgs("s-1", now).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("s-1", "f-1", "alice", "tok", "download", nil, nil, int64(1), 1, true, now))
	mock.ExpectQuery(q).WithArgs("s-1", now).WillReturnError(sql.ErrNoRows)

	got, err := repo.ClaimDownload(context.Background(), "s-1", now)
	require.NoError(t, err)
	assert.Equal(t, 1, got.DownloadCount)

	_, err = repo.ClaimDownload(context.Background(), "s-1", now)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDeactivate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `UPDATE\s+share_links\s+SET\s+is_active\s*=\s*false\s+WHERE\s+id\s*=\s*\$1`
	mock.ExpectExec(q).WithArgs("s-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("s-9").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Deactivate(context.Background(), "s-1"))
	assert.ErrorIs(t, repo.Deactivate(context.Background(), "s-9"), common.ErrorNotFound)
}

func TestReleaseDownload(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `UPDATE\s+share_links\s+SET\s+download_count\s*=\s*GREATEST\(download_count\s*-\s*1,\s*0\)\s+WHERE\s+id\s*=\s*\$1`
	mock.ExpectExec(q).WithArgs("s-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("s-9").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.ReleaseDownload(context.Background(), "s-1"))
	assert.ErrorIs(t, repo.ReleaseDownload(context.Background(), "s-9"), common.ErrorNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
