package reports

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sony/gobreaker"

	"schoollib/internal/apperr"
	"schoollib/internal/config"
)

func newBreaker(cfg config.ReportsConfig, logger *slog.Logger) *gobreaker.CircuitBreaker {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "reports",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		// Cancelled requests say nothing about the database.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
}

// guard runs fn through the breaker. An open breaker turns into
// ErrServiceUnavailable without touching the database.
func (s *service) guard(fn func() error) error {
	_, err := s.breaker.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.New(apperr.ErrServiceUnavailable, "Reports are temporarily unavailable")
	}
	return err
}
