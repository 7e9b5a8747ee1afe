package jobqueue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Maintenance runs housekeeping on a cron schedule next to the scheduler.
type Maintenance struct {
	scheduler *Scheduler
	cron      *cron.Cron
}

// NewMaintenance schedules REMOVE_COMPLETED with a standard cron expression or a
// descriptor such as "@daily".
func NewMaintenance(s *Scheduler, removeCompletedSpec string) (*Maintenance, error) {
	c := cron.New()
	m := &Maintenance{scheduler: s, cron: c}
	if _, err := c.AddFunc(removeCompletedSpec, m.removeCompleted); err != nil {
		return nil, fmt.Errorf("cleanup schedule %q: %w", removeCompletedSpec, err)
	}
	return m, nil
}

// Run starts the cron loop and blocks until ctx is done and any running
// task has returned.
func (m *Maintenance) Run(ctx context.Context) {
	m.cron.Start()
	<-ctx.Done()
	<-m.cron.Stop().Done()
	slog.Info("Maintenance stopped")
}

func (m *Maintenance) removeCompleted() {
	if _, err := m.scheduler.RemoveCompleted(context.Background()); err != nil {
		slog.Error("Scheduled REMOVE_COMPLETED failed", "error", err)
	}
}
