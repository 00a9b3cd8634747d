package query

import (
	"log/slog"
	"time"
)

// Janitor periodically prunes cache entries that went stale long ago so a
// long-running session does not accumulate every page it ever visited.
type Janitor struct {
	Cache    *Cache
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewJanitor creates a janitor. If interval is 0 or negative, defaults to
// 5 minutes.
func NewJanitor(cache *Cache, logger *slog.Logger, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Janitor{
		Cache:    cache,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the worker in the background. Call Stop to shut it down.
func (j *Janitor) Start() {
	go j.run()
	j.Logger.Info("cache janitor started", "interval", j.Interval)
}

// Stop shuts the worker down and waits for an in-progress sweep.
func (j *Janitor) Stop() {
	close(j.stopCh)
	<-j.doneCh
	j.Logger.Info("cache janitor stopped")
}

func (j *Janitor) run() {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.Sweep()
		case <-j.stopCh:
			return
		}
	}
}

// Sweep prunes once and returns how many entries were removed.
func (j *Janitor) Sweep() int {
	n := j.Cache.Prune(j.Interval)
	j.Cache.metrics.observePruned(n)
	j.Logger.Debug("cache sweep completed", "pruned", n, "remaining", j.Cache.Len())
	return n
}
