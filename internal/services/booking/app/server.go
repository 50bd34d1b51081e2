// Package app wires the booking lifecycle core to its runtime dependencies:
// the SQLite store, the admission-rule configuration, and the gRPC health
// surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/castlegate/visitbooker/internal/services/booking/domain"
	"github.com/castlegate/visitbooker/internal/services/booking/storage"
	bookingsqlite "github.com/castlegate/visitbooker/internal/services/booking/storage/sqlite"
)

// RuntimeConfig controls booking service startup.
type RuntimeConfig struct {
	Port      int
	DBPath    string
	RulesPath string
}

const (
	defaultBookingPort = 8087
	defaultBookingDB   = "data/booking.db"
)

// Runtime is the assembled booking service: the lifecycle manager over the
// opened store plus the event-log read surface consumed by the worker and
// by transport layers embedding this package.
type Runtime struct {
	Service *domain.Service
	Events  storage.EventStore

	store *bookingsqlite.Store
}

// NewRuntime opens the store, loads and compiles the admission-rule
// configuration, and assembles the lifecycle service. Rule compilation
// fails fast on unknown types or bad parameters so a misconfigured deploy
// never serves.
func NewRuntime(cfg RuntimeConfig) (*Runtime, error) {
	dbPath := strings.TrimSpace(cfg.DBPath)
	if dbPath == "" {
		dbPath = defaultBookingDB
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create booking storage dir: %w", err)
		}
	}

	store, err := bookingsqlite.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open booking sqlite store: %w", err)
	}

	descriptors, err := LoadRuleDescriptors(cfg.RulesPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load admission rules: %w", err)
	}
	reader := newDomainStore(store)
	engine, err := domain.NewEngineFromDescriptors(reader, descriptors)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("compile admission rules: %w", err)
	}

	return &Runtime{
		Service: domain.NewService(reader, engine, nil),
		Events:  store,
		store:   store,
	}, nil
}

// Close releases the runtime's store.
func (r *Runtime) Close() error {
	if r == nil || r.store == nil {
		return nil
	}
	return r.store.Close()
}

// Run assembles the runtime and serves gRPC health until ctx is cancelled
// or serving fails.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultBookingPort
	}

	runtime, err := NewRuntime(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := runtime.Close(); closeErr != nil {
			log.Printf("close booking sqlite store: %v", closeErr)
		}
	}()

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on booking port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("booking.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Printf("booking server listening at %v", listener.Addr())
		return grpcServer.Serve(listener)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		return groupCtx.Err()
	})

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
