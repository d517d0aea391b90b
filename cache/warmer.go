package cache

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultWarmSpec refreshes every five minutes (seconds field included).
const DefaultWarmSpec = "0 */5 * * * *"

// Refresher reloads cached tables.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Warmer refreshes a cache on a cron schedule so report builds rarely
// pay for a miss.
type Warmer struct {
	Target  Refresher
	Spec    string
	Timeout time.Duration
	Log     logrus.FieldLogger

	cron *cron.Cron
	mu   sync.Mutex
	runs int
}

// NewWarmer creates a warmer; call Start to schedule it.
func NewWarmer(target Refresher, spec string, log logrus.FieldLogger) *Warmer {
	if spec == "" {
		spec = DefaultWarmSpec
	}
	return &Warmer{
		Target:  target,
		Spec:    spec,
		Timeout: 30 * time.Second,
		Log:     log,
		cron:    cron.New(cron.WithSeconds()),
	}
}

// Start warms once synchronously, then schedules the periodic refresh.
// A failed first warm is logged; the schedule still starts.
func (w *Warmer) Start(ctx context.Context) error {
	if _, err := w.cron.AddFunc(w.Spec, func() { w.Warm(ctx) }); err != nil {
		return err
	}
	w.Warm(ctx)
	w.cron.Start()
	w.logger().WithField("spec", w.Spec).Info("cache warmer started")
	return nil
}

// Stop halts the schedule and waits for a running refresh.
func (w *Warmer) Stop() {
	<-w.cron.Stop().Done()
	w.logger().Info("cache warmer stopped")
}

// Warm runs one refresh.
func (w *Warmer) Warm(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := w.Target.Refresh(ctx)

	w.mu.Lock()
	w.runs++
	w.mu.Unlock()

	log := w.logger().WithField("duration", time.Since(start))
	if err != nil {
		log.WithError(err).Warn("cache refresh failed")
		return
	}
	log.Debug("cache refreshed")
}

// Runs returns the number of refreshes attempted.
func (w *Warmer) Runs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}

func (w *Warmer) logger() logrus.FieldLogger {
	if w.Log == nil {
		return logrus.StandardLogger()
	}
	return w.Log
}
