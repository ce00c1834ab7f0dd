package usecase

import (
	"context"
	"time"

	"offerwatch/internal/ports"
)

// Scheduler pairs the ticking driver with the monitor use case.
type Scheduler struct {
	driver  ports.Scheduler
	monitor *Monitor
}

// NewScheduler returns a helper to start/stop recurring passes.
func NewScheduler(driver ports.Scheduler, monitor *Monitor) *Scheduler {
	return &Scheduler{driver: driver, monitor: monitor}
}

// Start registers the monitor with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.monitor == nil {
		return nil
	}

	job := func(trigger time.Time) {
		s.monitor.RunAll(ctx, trigger)
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
