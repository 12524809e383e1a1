// Package server assembles the HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"schoollib/internal/apperr"
	"schoollib/internal/auth"
	"schoollib/internal/catalog"
	"schoollib/internal/circulation"
	"schoollib/internal/config"
	"schoollib/internal/eventlog"
	"schoollib/internal/membership"
	"schoollib/internal/reports"
	"schoollib/internal/reservation"
	"schoollib/internal/telemetry"
	"schoollib/internal/transfer"
	"schoollib/internal/web"
)

// Pinger reports database health.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the services behind the API.
type Deps struct {
	Config       config.ServerConfig
	Issuer       *auth.Issuer
	Members      membership.Service
	Catalog      catalog.Service
	Circulation  circulation.Service
	Reservations reservation.Service
	Reports      reports.Service
	Transfer     transfer.Service
	Events       *eventlog.Log
	DB           Pinger
	Metrics      http.Handler
	HTTPMetrics  *telemetry.HTTPMetrics
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if d.HTTPMetrics != nil {
		r.Use(telemetry.Middleware(d.HTTPMetrics))
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: !allowsAny(d.Config.CORSOrigins),
		MaxAge:           300,
	}))
	if d.Config.RequestTimeout > 0 {
		r.Use(middleware.Timeout(d.Config.RequestTimeout))
	}

	r.Get("/healthz", health(d.DB))
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	authn := auth.Authenticate(d.Issuer, d.Members)
	users := membership.NewHandler(d.Members, d.Issuer)
	r.Mount("/auth", users.AuthRoutes(authn))

	r.Group(func(r chi.Router) {
		r.Use(authn)
		r.Mount("/books", catalog.NewHandler(d.Catalog).Routes())
		r.Mount("/loans", circulation.NewHandler(d.Circulation).Routes())
		r.Mount("/reservations", reservation.NewHandler(d.Reservations).Routes())
		r.Mount("/users", users.UserRoutes())
		r.Mount("/reports", reports.NewHandler(d.Reports).Routes())
		r.Mount("/import-export", transfer.NewHandler(d.Transfer).Routes())
		r.With(auth.Require(auth.ViewAudit)).Get("/audit/events", auditEvents(d.Events))
	})
	return r
}

func allowsAny(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

func health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			slog.WarnContext(ctx, "health check failed", "error", err)
			web.Respond(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		web.Respond(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

const maxAuditBatch = 500

// auditEvents pages through the event log by id: ?after=<id>&limit=<n>.
func auditEvents(events *eventlog.Log) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		after, limit := int64(0), 100
		if v := r.URL.Query().Get("after"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				web.Error(w, r, apperr.Validation("after must be a non-negative integer"))
				return
			}
			after = n
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxAuditBatch {
				web.Error(w, r, apperr.Validation("limit must be between 1 and %d", maxAuditBatch))
				return
			}
			limit = n
		}

		list, err := events.Stream(r.Context(), after, limit)
		if err != nil {
			web.Error(w, r, err)
			return
		}
		web.Respond(w, http.StatusOK, list)
	}
}

// Run serves h until ctx is cancelled, then drains in-flight requests.
func Run(ctx context.Context, cfg config.ServerConfig, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http server", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
