// Package booking parses booking command flags and launches the booking
// service runtime.
package booking

import (
	"context"
	"flag"

	entrypoint "github.com/castlegate/visitbooker/internal/platform/cmd"
	bookingserver "github.com/castlegate/visitbooker/internal/services/booking/app"
)

// Config holds booking command configuration.
type Config struct {
	Port      int    `env:"VISITBOOKER_BOOKING_PORT" envDefault:"8087"`
	DBPath    string `env:"VISITBOOKER_BOOKING_DB_PATH" envDefault:"data/booking.db"`
	RulesPath string `env:"VISITBOOKER_BOOKING_RULES_PATH"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The booking gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The booking SQLite database path")
	fs.StringVar(&cfg.RulesPath, "rules-path", cfg.RulesPath, "The admission rules JSON file path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the booking service runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceBooking, func(context.Context) error {
		return bookingserver.Run(ctx, bookingserver.RuntimeConfig{
			Port:      cfg.Port,
			DBPath:    cfg.DBPath,
			RulesPath: cfg.RulesPath,
		})
	})
}
