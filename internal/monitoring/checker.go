package monitoring

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// DefaultCheckInterval is used when Checker is given a non-positive interval.
const DefaultCheckInterval = time.Minute

// Checker refreshes the run gauges in the background.
type Checker struct {
	collector *Collector
	interval  time.Duration
	clock     clockwork.Clock
}

// NewChecker creates a background checker.
func NewChecker(collector *Collector, interval time.Duration, clock clockwork.Clock) *Checker {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Checker{collector: collector, interval: interval, clock: clock}
}

// Run collects once immediately and then on every tick. It blocks until ctx
// is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting run log checker", zap.Duration("interval", c.interval))

	c.check(ctx, log)

	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("run log checker stopped")
			return
		case <-ticker.Chan():
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	snap, err := c.collector.Collect(ctx)
	if err != nil {
		log.Error("monitoring: failed to collect run counts", zap.Error(err))
		return
	}
	log.Debug("monitoring: run counts",
		zap.Int("total", snap.Total),
		zap.Int("failed", snap.Failed),
		zap.Float64("fail_rate", snap.FailRate),
	)
}
