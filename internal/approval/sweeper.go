package approval

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const sweepBatch = 100

// RunExpirySweeper marks pending requests past their window EXPIRED every
// interval until ctx is done.
func (g *Gate) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := g.ExpirePendingBefore(ctx, g.now()); err != nil {
				g.logger.Warn("approval expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// ExpirePendingBefore expires every pending request whose window closed
// before now and returns how many it transitioned.
func (g *Gate) ExpirePendingBefore(ctx context.Context, now time.Time) (int, error) {
	expired := 0
	for {
		sweepCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		batch, err := g.store.ListExpiredPendingApprovals(sweepCtx, now, sweepBatch)
		if err != nil {
			cancel()
			return expired, err
		}
		n := 0
		for i := range batch {
			if g.expire(sweepCtx, &batch[i], now) {
				n++
			}
		}
		cancel()
		expired += n
		if len(batch) < sweepBatch || n == 0 {
			break
		}
	}
	if expired > 0 {
		g.logger.Info("expired stale approvals", zap.Int("count", expired))
	}
	return expired, nil
}
