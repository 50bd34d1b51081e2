// Package worker parses worker command flags and launches the worker runtime.
package worker

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/castlegate/visitbooker/internal/platform/cmd"
	workerserver "github.com/castlegate/visitbooker/internal/services/worker/app"
)

// Config holds worker command configuration.
type Config struct {
	Port            int           `env:"VISITBOOKER_WORKER_PORT" envDefault:"8089"`
	BookingAddr     string        `env:"VISITBOOKER_WORKER_BOOKING_ADDR" envDefault:"localhost:8087"`
	DBPath          string        `env:"VISITBOOKER_WORKER_DB_PATH" envDefault:"data/worker.db"`
	BookingDBPath   string        `env:"VISITBOOKER_WORKER_BOOKING_DB_PATH" envDefault:"data/booking.db"`
	Consumer        string        `env:"VISITBOOKER_WORKER_CONSUMER" envDefault:"notify-worker"`
	PollInterval    time.Duration `env:"VISITBOOKER_WORKER_POLL_INTERVAL" envDefault:"5s"`
	BatchSize       int           `env:"VISITBOOKER_WORKER_BATCH_SIZE" envDefault:"50"`
	GRPCDialTimeout time.Duration `env:"VISITBOOKER_WORKER_DIAL_TIMEOUT" envDefault:"2s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The worker health gRPC server port")
	fs.StringVar(&cfg.BookingAddr, "booking-addr", cfg.BookingAddr, "The booking gRPC server address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The worker SQLite database path")
	fs.StringVar(&cfg.BookingDBPath, "booking-db-path", cfg.BookingDBPath, "The booking event log SQLite database path")
	fs.StringVar(&cfg.Consumer, "consumer", cfg.Consumer, "Event log consumer name")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Event log poll interval")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Maximum events drained per poll")
	fs.DurationVar(&cfg.GRPCDialTimeout, "dial-timeout", cfg.GRPCDialTimeout, "gRPC dependency dial timeout")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the worker runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWorker, func(context.Context) error {
		return workerserver.Run(ctx, workerserver.RuntimeConfig{
			Port:            cfg.Port,
			BookingAddr:     cfg.BookingAddr,
			DBPath:          cfg.DBPath,
			BookingDBPath:   cfg.BookingDBPath,
			Consumer:        cfg.Consumer,
			PollInterval:    cfg.PollInterval,
			BatchSize:       cfg.BatchSize,
			GRPCDialTimeout: cfg.GRPCDialTimeout,
		})
	})
}
