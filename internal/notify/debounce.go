package notify

import (
	"context"
	"fmt"
	"time"

	"offerwatch/internal/ports"
)

// Debouncer enforces a minimum interval between outbound alerts per source.
// The interval is evaluated independently of how many changes a pass found:
// non-empty change buckets are necessary but not sufficient for a send.
type Debouncer struct {
	log         ports.NotificationLog
	minInterval time.Duration
}

// NewDebouncer wires the persisted notification log with the configured
// minimum interval.
func NewDebouncer(log ports.NotificationLog, minInterval time.Duration) *Debouncer {
	return &Debouncer{log: log, minInterval: minInterval}
}

// CanNotify reports whether at least the minimum interval has elapsed since
// the source's last recorded notification. A source never notified before
// can always notify.
func (d *Debouncer) CanNotify(ctx context.Context, source string, now time.Time) (bool, error) {
	last, err := d.log.LastNotified(ctx, source)
	if err != nil {
		return false, fmt.Errorf("load last notification for %s: %w", source, err)
	}
	if last.IsZero() {
		return true, nil
	}
	return now.Sub(last) >= d.minInterval, nil
}

// RecordNotified persists now as the source's last notification time.
func (d *Debouncer) RecordNotified(ctx context.Context, source string, now time.Time) error {
	if err := d.log.RecordNotified(ctx, source, now); err != nil {
		return fmt.Errorf("record notification for %s: %w", source, err)
	}
	return nil
}
