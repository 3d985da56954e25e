package watch

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// LoopConfig controls the poll loop cadence.
type LoopConfig struct {
	// Interval is the base delay between cycles. Default: 90s.
	Interval time.Duration
	// Jitter adds a uniform random delay in [0, Jitter) on top of the
	// interval so restarts across deployments do not align.
	Jitter time.Duration
}

// Run executes cycles until ctx is cancelled, sleeping Interval plus jitter
// between them. The first cycle starts immediately. Cycle errors are logged
// and the loop keeps going; only cancellation ends it.
func (w *Watcher) Run(ctx context.Context, clock clockwork.Clock, cfg LoopConfig) error {
	if cfg.Interval <= 0 {
		cfg.Interval = 90 * time.Second
	}

	log := zap.L().With(zap.String("component", "watch"))
	log.Info("starting watch loop",
		zap.Duration("interval", cfg.Interval),
		zap.Duration("jitter", cfg.Jitter),
		zap.Strings("centers", w.cfg.Centers),
	)

	for {
		if _, err := w.RunCycle(ctx); err != nil && ctx.Err() == nil {
			log.Error("watch: cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			log.Info("watch loop stopped")
			return nil
		case <-clock.After(cfg.Interval + jitterDelay(cfg.Jitter)):
		}
	}
}

func jitterDelay(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(max)))
}
