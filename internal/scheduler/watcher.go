// Package scheduler runs periodic background scans at the frequency chosen
// in the user's settings.
package scheduler

import (
	"context"
	"errors"
	"time"

	jitterbug "github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
)

// ScanFunc starts one scan cycle. Errors are logged and the watcher keeps
// going; only context cancellation stops it.
type ScanFunc func(ctx context.Context) error

type Watcher struct {
	interval time.Duration
	scan     ScanFunc
	logger   *zap.Logger
}

// New creates a watcher firing roughly every interval. A little jitter is
// added so many clients on the same frequency don't hit the backend in
// lockstep.
func New(interval time.Duration, scan ScanFunc, logger *zap.Logger) (*Watcher, error) {
	if interval <= 0 {
		return nil, errors.New("watch interval must be positive")
	}

	if scan == nil {
		return nil, errors.New("scan function is required")
	}

	return &Watcher{interval: interval, scan: scan, logger: logger}, nil
}

// Run blocks until ctx is cancelled, starting a scan cycle on every tick.
// The first cycle runs immediately.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := jitterbug.New(w.interval, &jitterbug.Norm{Stdev: w.interval / 20, Mean: 0})
	defer ticker.Stop()

	w.logger.Info("watcher started", zap.Duration("interval", w.interval))

	for {
		if err := w.scan(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			w.logger.Warn("scan cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
