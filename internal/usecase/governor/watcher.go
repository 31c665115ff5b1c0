package governor

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Watch periodically persists period rollovers and expires stale reservations,
// so the stored state reflects a new day even when nobody records usage.
// It blocks until ctx is cancelled.
func (g *Governor) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.tick(ctx)
		}
	}
}

func (g *Governor) tick(ctx context.Context) {
	if err := g.EnsureCurrentPeriod(ctx); err != nil {
		g.logger.Warn("Failed to persist period rollover", zap.Error(err))
	}
	if n := g.ExpireReservations(); n > 0 {
		g.logger.Info("Expired reservations", zap.Int("count", n))
	}
}
