package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/recordsplit/recordsplit/pkg/common/log"
	"github.com/recordsplit/recordsplit/pkg/config"
	"github.com/recordsplit/recordsplit/pkg/grpcapi"
	"github.com/recordsplit/recordsplit/pkg/memkv"
	"github.com/recordsplit/recordsplit/pkg/recordstore"
	"github.com/recordsplit/recordsplit/pkg/stats"
	"github.com/recordsplit/recordsplit/pkg/telemetry"
)

// Server wraps a grpc.Server bound to a recordstore backed by an
// in-process memkv.Store, mirroring the listen/start/serve/shutdown
// lifecycle this module's storage server uses for its own gRPC service.
type Server struct {
	cfg        *config.Config
	store      *memkv.Store
	metrics    *stats.AtomicCollector
	telemetry  telemetry.Telemetry
	listener   net.Listener
	grpcServer *grpc.Server
}

// NewServer creates a Server that will apply cfg's defaults to every
// request it serves.
func NewServer(cfg *config.Config) *Server {
	return &Server{
		cfg:     cfg,
		store:   memkv.New(),
		metrics: stats.NewAtomicCollector(),
	}
}

// Start binds the listener and registers the recordsplit service, but
// does not yet block serving requests.
func (s *Server) Start() error {
	var err error
	s.listener, err = net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}

	log.Info("Listening on %s", s.cfg.ListenAddr)

	tel, err := telemetry.New(s.cfg.TelemetryConfig())
	if err != nil {
		log.Warn("Telemetry disabled, failed to start provider: %v", err)
		tel = telemetry.NewNoop()
	}
	s.telemetry = tel

	kaProps := keepalive.ServerParameters{
		MaxConnectionIdle:     60 * time.Second,
		MaxConnectionAge:      5 * time.Minute,
		MaxConnectionAgeGrace: 5 * time.Second,
		Time:                  15 * time.Second,
		Timeout:               5 * time.Second,
	}
	kaPolicy := keepalive.EnforcementPolicy{
		MinTime:             5 * time.Second,
		PermitWithoutStream: true,
	}

	s.grpcServer = grpc.NewServer(
		grpc.KeepaliveParams(kaProps),
		grpc.KeepaliveEnforcementPolicy(kaPolicy),
	)

	readerOpts := recordstore.ReaderOptions{
		SplitLongRecords:           s.cfg.SplitLongRecordsDefault,
		MissingUnsplitRecordSuffix: s.cfg.OldVersionFormatDefault,
	}
	impl := grpcapi.NewServer(s.store, readerOpts, s.cfg.DefaultRowLimit, s.cfg.DefaultByteLimit, s.metrics, s.telemetry)
	s.grpcServer.RegisterService(&grpcapi.ServiceDesc, impl)

	log.Info("gRPC server initialized")
	return nil
}

// Serve blocks accepting and handling connections until the server is
// shut down.
func (s *Server) Serve() error {
	if s.grpcServer == nil {
		return fmt.Errorf("server not initialized, call Start() first")
	}
	log.Info("Starting gRPC server")
	return s.grpcServer.Serve(s.listener)
}

// Shutdown stops accepting new work and waits up to ctx's deadline for
// in-flight calls to finish before forcing a stop.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.grpcServer == nil {
		return nil
	}
	log.Info("Gracefully stopping gRPC server...")

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		log.Info("gRPC server stopped gracefully")
	case <-ctx.Done():
		log.Warn("Context deadline exceeded, forcing server stop")
		s.grpcServer.Stop()
	}

	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			log.Error("Telemetry shutdown failed: %v", err)
		}
	}
	return nil
}
