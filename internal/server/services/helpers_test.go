package services

import (
	"context"
	"database/sql"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/cryptox"
	"github.com/dmitrijs2005/cloudvault/internal/logging"
	"github.com/dmitrijs2005/cloudvault/internal/server/blobstore"
	"github.com/dmitrijs2005/cloudvault/internal/server/config"
	"github.com/dmitrijs2005/cloudvault/internal/server/metrics"
	"github.com/dmitrijs2005/cloudvault/internal/server/models"
	"github.com/dmitrijs2005/cloudvault/internal/server/ratelimit"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/nodes"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// captureDeliverer remembers the last code handed to it.
type captureDeliverer struct {
	mu    sync.Mutex
	codes map[string]string
}

func (d *captureDeliverer) Deliver(ctx context.Context, subject string, purpose models.Purpose, code string, expiresAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.codes == nil {
		d.codes = make(map[string]string)
	}
	d.codes[subject] = code
	return nil
}

func (d *captureDeliverer) last(subject string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.codes[subject]
}

// brokenStore fails the operations whose error is set.
type brokenStore struct {
	*blobstore.MemoryStore
	getErr    error
	deleteErr error
}

func (s *brokenStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *brokenStore) Delete(ctx context.Context, key string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.MemoryStore.Delete(ctx, key)
}

type testEnv struct {
	db        *sql.DB
	repos     *repomanager.MemoryRepositoryManager
	blobs     *blobstore.MemoryStore
	metrics   *metrics.Metrics
	clock     *fakeClock
	cfg       *config.Config
	audit     *AuditService
	deliverer *captureDeliverer
	logger    logging.Logger
}

// newTestEnv wires services against in-memory repositories. The sqlite
// database only provides real BeginTx/Commit calls for dbx.WithTx.
func newTestEnv(t *testing.T, seed ...models.StorageNode) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	repos := repomanager.NewMemoryRepositoryManager()
	repos.NodeRepo = nodes.NewMemoryRepository(seed...)

	cfg := &config.Config{}
	cfg.LoadDefaults()

	mtr := metrics.New()
	logger := logging.Nop{}
	clock := newFakeClock(time.Now().UTC())

	audit := NewAuditService(db, repos, nil, logger, mtr)
	audit.now = clock.Now

	return &testEnv{
		db:        db,
		repos:     repos,
		blobs:     blobstore.NewMemoryStore(),
		metrics:   mtr,
		clock:     clock,
		cfg:       cfg,
		audit:     audit,
		deliverer: &captureDeliverer{},
		logger:    logger,
	}
}

func (e *testEnv) otpService(t *testing.T) *OTPService {
	t.Helper()
	hasher, err := cryptox.NewHasher(e.cfg.OTPHasher, []byte(e.cfg.OTPPepper))
	require.NoError(t, err)

	limiter := ratelimit.NewMemoryLimiter(e.cfg.VerifyRateLimit, e.cfg.VerifyRateWindow)
	s := NewOTPService(e.db, e.repos, e.cfg, hasher, limiter, e.deliverer, e.audit, e.logger, e.metrics)
	s.now = e.clock.Now
	return s
}

func (e *testEnv) placementService() *PlacementService {
	s := NewPlacementService(e.db, e.repos, e.cfg.ReplicaCount, e.logger, e.metrics)
	s.now = e.clock.Now
	return s
}

func (e *testEnv) fileService() *FileService {
	return e.fileServiceWith(e.blobs)
}

func (e *testEnv) fileServiceWith(blobs blobstore.Store) *FileService {
	s := NewFileService(e.db, e.repos, blobs, e.placementService(), e.audit, e.logger, e.metrics)
	s.now = e.clock.Now
	return s
}

func (e *testEnv) shareService() *ShareService {
	return e.shareServiceWith(e.fileService())
}

func (e *testEnv) shareServiceWith(files *FileService) *ShareService {
	s := NewShareService(e.db, e.repos, files, e.audit, e.logger, e.metrics)
	s.now = e.clock.Now
	return s
}

func (e *testEnv) adminService() *AdminService {
	s := NewAdminService(e.db, e.repos, e.audit, e.logger, e.metrics)
	s.now = e.clock.Now
	return s
}

func node(id, name string, used int64, status models.NodeStatus) models.StorageNode {
	return models.StorageNode{ID: id, Name: name, Capacity: 1 << 30, UsedSpace: used, Status: status}
}
