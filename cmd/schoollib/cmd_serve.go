package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"schoollib/internal/auth"
	"schoollib/internal/circulation"
	"schoollib/internal/server"
	"schoollib/internal/store"
	"schoollib/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations before serving")
	return cmd
}

func runServe(ctx context.Context, migrate bool) error {
	a, err := bootstrap(ctx, os.Stdout, "")
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cfg.RequireSecret(); err != nil {
		return err
	}
	if migrate {
		if err := store.Migrate(ctx, a.db, a.logger); err != nil {
			return err
		}
	}

	tel, err := telemetry.Init(ctx, a.cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	svc, err := a.services()
	if err != nil {
		return err
	}

	router := server.NewRouter(server.Deps{
		Config:       a.cfg.Server,
		Issuer:       auth.NewIssuer(a.cfg.Auth.JWTSecret, a.cfg.Auth.TokenTTL),
		Members:      svc.members,
		Catalog:      svc.catalog,
		Circulation:  svc.circulation,
		Reservations: svc.reservations,
		Reports:      svc.reports,
		Transfer:     svc.transfer,
		Events:       svc.events,
		DB:           a.db,
		Metrics:      tel.Handler(),
		HTTPMetrics:  tel.HTTP,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, a.cfg.Server, router, a.logger)
	})
	g.Go(func() error {
		circulation.RunSweeper(gctx, svc.circulation, a.cfg.Loans.SweepInterval, a.logger)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
