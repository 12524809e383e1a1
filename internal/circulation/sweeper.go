package circulation

import (
	"context"
	"log/slog"
	"time"
)

// RunSweeper marks overdue loans every interval until ctx is cancelled.
// A non-positive interval disables it; reads still sweep lazily.
func RunSweeper(ctx context.Context, svc Service, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.InfoContext(ctx, "overdue sweeper started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "overdue sweeper stopped")
			return
		case <-ticker.C:
			if _, err := svc.SweepOverdue(ctx); err != nil && ctx.Err() == nil {
				logger.ErrorContext(ctx, "overdue sweep failed", "error", err)
			}
		}
	}
}
