// Command schoollib runs the school library API and its maintenance tasks.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"schoollib/internal/catalog"
	"schoollib/internal/circulation"
	"schoollib/internal/config"
	"schoollib/internal/eventlog"
	"schoollib/internal/membership"
	"schoollib/internal/reports"
	"schoollib/internal/reservation"
	"schoollib/internal/store"
	"schoollib/internal/telemetry"
	"schoollib/internal/transfer"
)

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "schoollib",
		Short:         "School library circulation backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newCreateAdminCmd(),
		newSeedCmd(),
		newImportCmd(),
		newExportCmd(),
	)
	return root
}

// app is what every command needs once configuration is loaded.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	db     *sqlx.DB
}

// bootstrap loads configuration and opens the database. Maintenance
// commands log as text to stderr so stdout stays free for CSV output.
func bootstrap(ctx context.Context, logOut io.Writer, format string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = cfg.Telemetry.LogFormat
	}
	logger, err := telemetry.NewLogger(logOut, cfg.Telemetry.LogLevel, format)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	db, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, db: db}, nil
}

func (a *app) Close() error { return a.db.Close() }

type services struct {
	events       *eventlog.Log
	members      membership.Service
	catalog      catalog.Service
	circulation  circulation.Service
	reservations reservation.Service
	reports      reports.Service
	transfer     transfer.Service
}

func (a *app) services() (*services, error) {
	limiter := rate.NewLimiter(rate.Limit(float64(a.cfg.Auth.AttemptsPerMinute)/60.0), a.cfg.Auth.AttemptsBurst)

	s := &services{events: eventlog.New(a.db)}
	s.members = membership.NewService(a.db, s.events, limiter, a.logger.With("component", "membership"))
	s.catalog = catalog.NewService(a.db, s.events, a.logger.With("component", "catalog"))

	circ, err := circulation.NewService(a.db, s.events, s.catalog, s.members, circulation.Options{
		DefaultDays: a.cfg.Loans.DefaultDays,
		FinePerDay:  a.cfg.Loans.FinePerDay,
	}, a.logger.With("component", "circulation"))
	if err != nil {
		return nil, err
	}
	s.circulation = circ
	s.reservations = reservation.NewService(a.db, s.events, s.catalog, s.members, a.logger.With("component", "reservation"))
	s.reports = reports.NewService(a.db, a.cfg.Reports, a.logger.With("component", "reports"))
	s.transfer = transfer.NewService(s.catalog, s.members, s.reports, a.logger.With("component", "transfer"))
	return s, nil
}
