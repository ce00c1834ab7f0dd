package scheduler

import (
	"context"
	"sync"
	"time"

	"offerwatch/internal/ports"
)

// TickerScheduler runs the job immediately and then on a fixed interval.
type TickerScheduler struct {
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

var _ ports.Scheduler = (*TickerScheduler)(nil)

// NewTickerScheduler builds a scheduler with the configured check interval.
func NewTickerScheduler(interval time.Duration) *TickerScheduler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &TickerScheduler{interval: interval}
}

// Start begins ticking until the context is cancelled or Stop is called.
// A second Start while running is a no-op.
func (t *TickerScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	t.mu.Lock()
	if t.stop != nil {
		t.mu.Unlock()
		return nil
	}
	stop := make(chan struct{})
	t.stop = stop
	t.mu.Unlock()

	// The goroutine only ever sees its own stop channel, so Stop can reset
	// the field without racing it.
	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		job(time.Now())
		for {
			select {
			case tick := <-ticker.C:
				job(tick)
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine. Safe to call more than once.
func (t *TickerScheduler) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stop == nil {
		return nil
	}
	close(t.stop)
	t.stop = nil
	return nil
}
