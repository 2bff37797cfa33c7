// Package server wires configuration, storage backends and services together
// and runs the REST and gRPC servers until a termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/cloudvault/internal/cryptox"
	"github.com/dmitrijs2005/cloudvault/internal/logging"
	"github.com/dmitrijs2005/cloudvault/internal/server/blobstore"
	"github.com/dmitrijs2005/cloudvault/internal/server/config"
	"github.com/dmitrijs2005/cloudvault/internal/server/events"
	"github.com/dmitrijs2005/cloudvault/internal/server/metrics"
	"github.com/dmitrijs2005/cloudvault/internal/server/ratelimit"
	"github.com/dmitrijs2005/cloudvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cloudvault/internal/server/rest"
	"github.com/dmitrijs2005/cloudvault/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"

	gs "github.com/dmitrijs2005/cloudvault/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  *logging.ZapLogger
	db      *sql.DB
	closers []func() error

	otpService   *services.OTPService
	adminService *services.AdminService
	handler      *rest.Handler
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger, err := logging.NewZap(c.LogLevel, c.Environment)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db}
	app.closers = append(app.closers, db.Close)

	if err := app.build(ctx); err != nil {
		app.close(ctx)
		return nil, err
	}

	return app, nil
}

func (app *App) build(ctx context.Context) error {
	c := app.config

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations error: %w", err)
	}

	hasher, err := cryptox.NewHasher(c.OTPHasher, []byte(c.OTPPepper))
	if err != nil {
		return fmt.Errorf("otp hasher: %w", err)
	}
	if c.OTPHasher == "legacy" {
		app.logger.Warn(ctx, "legacy otp fingerprints are enumerable, set otp hasher to hmac")
	}

	blobs, err := app.blobStore(ctx)
	if err != nil {
		return err
	}

	limiter, err := app.limiter(ctx)
	if err != nil {
		return err
	}

	var publisher services.Publisher
	if c.KafkaBrokers != "" {
		kp := events.NewKafkaPublisher(c.KafkaBrokers, c.KafkaTopic)
		app.closers = append(app.closers, kp.Close)
		publisher = kp
	}

	if c.ExposeOTPForTesting {
		app.logger.Warn(ctx, "otp codes are echoed in API responses")
	}

	mtr := metrics.New()

	audit := services.NewAuditService(app.db, rm, publisher, app.logger, mtr)
	app.closers = append(app.closers, func() error {
		audit.Flush()
		return nil
	})
	deliverer := services.NewLogDeliverer(app.logger)
	otp := services.NewOTPService(app.db, rm, c, hasher, limiter, deliverer, audit, app.logger, mtr)
	placement := services.NewPlacementService(app.db, rm, c.ReplicaCount, app.logger, mtr)
	files := services.NewFileService(app.db, rm, blobs, placement, audit, app.logger, mtr)
	shares := services.NewShareService(app.db, rm, files, audit, app.logger, mtr)
	admin := services.NewAdminService(app.db, rm, audit, app.logger, mtr)

	app.otpService = otp
	app.adminService = admin
	app.handler = rest.NewHandler(otp, files, shares, admin, mtr, app.db, app.logger, c.SecretKey)

	return nil
}

func (app *App) blobStore(ctx context.Context) (blobstore.Store, error) {
	switch app.config.BlobBackend {
	case "memory":
		app.logger.Warn(ctx, "file contents are kept in memory and lost on restart")
		return blobstore.NewMemoryStore(), nil
	case "s3":
		s, err := blobstore.NewS3Store(ctx, blobstore.S3Config{
			Region:       app.config.S3Region,
			User:         app.config.S3RootUser,
			Password:     app.config.S3RootPassword,
			BaseEndpoint: app.config.S3BaseEndpoint,
			Bucket:       app.config.S3Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 init error: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", app.config.BlobBackend)
	}
}

func (app *App) limiter(ctx context.Context) (ratelimit.Limiter, error) {
	c := app.config
	if c.RedisAddr == "" {
		return ratelimit.NewMemoryLimiter(c.VerifyRateLimit, c.VerifyRateWindow), nil
	}

	client, err := ratelimit.NewRedisClient(ctx, c.RedisAddr)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis init error: %w", err)
	}
	app.closers = append(app.closers, client.Close)

	return ratelimit.NewRedisLimiter(client, "cloudvault:ratelimit", c.VerifyRateLimit, c.VerifyRateWindow), nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := rest.NewServer(app.config.EndpointAddrHTTP, app.handler.Router(), app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.db, app.adminService, app.config.HealthCheckInterval)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// close releases resources in reverse order of acquisition.
func (app *App) close(ctx context.Context) {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			app.logger.Warn(ctx, "close failed", "error", err)
		}
	}
	app.closers = nil
	_ = app.logger.Sync()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(3)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.otpService.RunSweeper(ctx, app.config.SweepInterval)
	}()

	wg.Wait()

	app.logger.Info(context.Background(), "Stopped, releasing resources")
	app.close(context.Background())
}
