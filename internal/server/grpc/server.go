// Package grpc runs the operations endpoint: the standard gRPC health service
// and server reflection.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/cloudvault/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is reported alongside the overall ("") health status.
const ServiceName = "cloudvault.Storage"

// Pinger reports whether the database answers.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NodeCounter returns the number of online storage nodes, or a negative
// number when it cannot be determined.
type NodeCounter interface {
	RefreshNodeGauge(ctx context.Context) int
}

type GRPCServer struct {
	address  string
	logger   logging.Logger
	health   *health.Server
	db       Pinger
	nodes    NodeCounter
	interval time.Duration
}

func NewGRPCServer(a string, l logging.Logger, db Pinger, nodes NodeCounter, interval time.Duration) *GRPCServer {
	return &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		health:   health.NewServer(),
		db:       db,
		nodes:    nodes,
		interval: interval,
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {
	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on listen until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))

	healthpb.RegisterHealthServer(srv, s.health)
	reflection.Register(srv)

	s.updateHealth(ctx)
	go s.watchHealth(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}

func (s *GRPCServer) watchHealth(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval):
			s.updateHealth(ctx)
		}
	}
}

// updateHealth reports SERVING while the database answers and at least one
// storage node is online.
func (s *GRPCServer) updateHealth(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.Warn(ctx, "database ping failed", "error", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	if st == healthpb.HealthCheckResponse_SERVING && s.nodes != nil {
		if n := s.nodes.RefreshNodeGauge(ctx); n < 1 {
			s.logger.Warn(ctx, "no storage nodes online", "count", n)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}

	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
	return st
}
