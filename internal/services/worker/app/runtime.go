// Package app runs the notification worker: it drains the booking event
// log into the delivery-history store and serves gRPC health.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	platformgrpc "github.com/castlegate/visitbooker/internal/platform/grpc"
	"github.com/castlegate/visitbooker/internal/platform/timeouts"
	bookingsqlite "github.com/castlegate/visitbooker/internal/services/booking/storage/sqlite"
	workersqlite "github.com/castlegate/visitbooker/internal/services/worker/storage/sqlite"
)

// RuntimeConfig controls worker startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	Port            int
	BookingAddr     string
	DBPath          string
	BookingDBPath   string
	Consumer        string
	PollInterval    time.Duration
	BatchSize       int
	GRPCDialTimeout time.Duration
}

const (
	defaultWorkerPort = 8089
	defaultWorkerDB   = "data/worker.db"
	defaultBookingDB  = "data/booking.db"
)

// Run starts worker runtime dependencies and the background polling loop.
// The worker reads the booking event log from the shared booking database
// and gates startup on the booking service's health so it never polls a
// store mid-migration.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.BookingAddr) == "" {
		return fmt.Errorf("booking address is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultWorkerPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultWorkerDB
	}
	if strings.TrimSpace(cfg.BookingDBPath) == "" {
		cfg.BookingDBPath = defaultBookingDB
	}
	if cfg.GRPCDialTimeout <= 0 {
		cfg.GRPCDialTimeout = timeouts.GRPCDial
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create worker storage dir: %w", err)
		}
	}

	workerStore, err := workersqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open worker sqlite store: %w", err)
	}
	defer func() {
		if closeErr := workerStore.Close(); closeErr != nil {
			log.Printf("close worker sqlite store: %v", closeErr)
		}
	}()

	bookingConn, err := platformgrpc.DialWithHealth(
		ctx,
		nil,
		cfg.BookingAddr,
		cfg.GRPCDialTimeout,
		log.Printf,
		platformgrpc.DefaultClientDialOptions()...,
	)
	if err != nil {
		return fmt.Errorf("dial booking service: %w", err)
	}
	defer func() {
		if closeErr := bookingConn.Close(); closeErr != nil {
			log.Printf("close booking connection: %v", closeErr)
		}
	}()

	bookingStore, err := bookingsqlite.Open(cfg.BookingDBPath)
	if err != nil {
		return fmt.Errorf("open booking event log: %w", err)
	}
	defer func() {
		if closeErr := bookingStore.Close(); closeErr != nil {
			log.Printf("close booking event log: %v", closeErr)
		}
	}()

	workerLoop := NewLoop(bookingStore, workerStore, Config{
		Consumer:     cfg.Consumer,
		PollInterval: cfg.PollInterval,
		BatchSize:    cfg.BatchSize,
	}, log.Printf)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on worker port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("worker.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	log.Printf("worker server listening at %v", listener.Addr())
	return workerLoop.Run(ctx)
}
