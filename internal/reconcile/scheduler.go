package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler fires the reconciliation job once daily at a fixed local
// time. On-demand runs go straight through Reconciler.Run.
type Scheduler struct {
	reconciler *Reconciler
	hour       int
	location   *time.Location

	stopChan chan struct{}
	wg       sync.WaitGroup

	now func() time.Time // injectable for tests
}

// NewScheduler creates a Scheduler firing daily at the given hour in
// the given time zone.
func NewScheduler(reconciler *Reconciler, hour int, location *time.Location) *Scheduler {
	return &Scheduler{
		reconciler: reconciler,
		hour:       hour,
		location:   location,
		stopChan:   make(chan struct{}),
		now:        time.Now,
	}
}

// Start begins the scheduling loop. Blocks until the context is
// cancelled or Stop is called; run it in a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("Starting rank check scheduler", "hour", s.hour, "timezone", s.location.String())

	s.wg.Add(1)
	defer s.wg.Done()

	for {
		wait := time.Until(s.nextRun())
		slog.Debug("Next rank check scheduled", "in", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("Scheduler stopped (context cancelled)")
			return
		case <-s.stopChan:
			timer.Stop()
			slog.Info("Scheduler stopped")
			return
		case <-timer.C:
			if err := s.reconciler.Run(ctx); err != nil {
				slog.Error("Scheduled rank check failed", "error", err)
			}
		}
	}
}

// Stop signals the scheduler to stop
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

// nextRun returns the next daily firing time strictly after now
func (s *Scheduler) nextRun() time.Time {
	now := s.now().In(s.location)
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, 0, 0, 0, s.location)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
