// Package notifyreport prints operator reports over the notification
// pipeline: the compacted delivery-status view from a worker history
// database, or the raw booking outbox filtered by an AIP-160 expression.
package notifyreport

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	entrypoint "github.com/castlegate/visitbooker/internal/platform/cmd"
	bookingsqlite "github.com/castlegate/visitbooker/internal/services/booking/storage/sqlite"
	"github.com/castlegate/visitbooker/internal/services/worker/app"
	workersqlite "github.com/castlegate/visitbooker/internal/services/worker/storage/sqlite"
)

// Config holds report tool configuration.
type Config struct {
	DBPath        string `env:"VISITBOOKER_WORKER_DB_PATH" envDefault:"data/worker.db"`
	BookingDBPath string `env:"VISITBOOKER_BOOKING_DB_PATH" envDefault:"data/booking.db"`
	Limit         int    `env:"VISITBOOKER_REPORT_LIMIT" envDefault:"1000"`
	EventsFilter  string `env:"VISITBOOKER_REPORT_EVENTS_FILTER"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The worker SQLite database path")
	fs.StringVar(&cfg.BookingDBPath, "booking-db-path", cfg.BookingDBPath, "The booking SQLite database path")
	fs.IntVar(&cfg.Limit, "limit", cfg.Limit, "Maximum rows to scan")
	fs.StringVar(&cfg.EventsFilter, "events-filter", cfg.EventsFilter, `Print booking outbox events matching this filter expression (e.g. type = "visit.cancelled") instead of the delivery report`)
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run writes the requested report. With an events filter it prints booking
// outbox events matching the expression; otherwise one line per
// notification id with its authoritative delivery status.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if strings.TrimSpace(cfg.EventsFilter) != "" {
		return eventReport(ctx, cfg, out)
	}
	return deliveryReport(ctx, cfg, out)
}

func deliveryReport(ctx context.Context, cfg Config, out io.Writer) error {
	store, err := workersqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open worker store: %w", err)
	}
	defer store.Close()

	compacted, err := app.NewIngestor(store, nil).CompactedHistory(ctx, cfg.Limit)
	if err != nil {
		return fmt.Errorf("compact history: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NOTIFICATION\tSTATUS\tAUDIT REF\tTEMPLATE")
	for _, record := range compacted {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", record.NotificationID, record.Status, record.EventAuditReference, record.TemplateID)
	}
	return w.Flush()
}

func eventReport(ctx context.Context, cfg Config, out io.Writer) error {
	store, err := bookingsqlite.Open(cfg.BookingDBPath)
	if err != nil {
		return fmt.Errorf("open booking store: %w", err)
	}
	defer store.Close()

	events, err := store.QueryEvents(ctx, cfg.EventsFilter, cfg.Limit)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tTYPE\tREFERENCE\tVISIT")
	for _, event := range events {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", event.ID, event.EventType, event.Reference, event.VisitID)
	}
	return w.Flush()
}
