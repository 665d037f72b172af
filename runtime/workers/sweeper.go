package workers

import (
	"context"
	"log/slog"
	"time"

	"support-hub/repositories"
)

// RetentionSweeper periodically drops delivery logs whose retention has
// elapsed. Reads expire stale logs lazily already; the sweeper reclaims the
// logs nobody ever reads again.
type RetentionSweeper struct {
	log      *slog.Logger
	store    repositories.IDeliveryStore
	interval time.Duration
}

func NewRetentionSweeper(log *slog.Logger, store repositories.IDeliveryStore, interval time.Duration) *RetentionSweeper {
	return &RetentionSweeper{log: log, store: store, interval: interval}
}

func (w *RetentionSweeper) Run(ctx context.Context) error {
	w.log.Info("Starting retention sweeper", "interval", w.interval.String())
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping worker")
			return ctx.Err()
		case <-ticker.C:
			dropped, err := w.store.ExpireStale()
			if err != nil {
				w.log.Warn("Sweep failed", "error", err)
				continue
			}
			if dropped > 0 {
				w.log.Info("Expired delivery logs", "count", dropped)
			}
		}
	}
}
