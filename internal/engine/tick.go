package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Task is a unit of recurring work: an agent's loop or a world cycle.
type Task struct {
	Name string
	Next func() time.Duration // Pause before each run
	Do   func(ctx context.Context) error
}

// Every returns a fixed-interval schedule.
func Every(d time.Duration) func() time.Duration {
	return func() time.Duration { return d }
}

// Run sleeps, runs Do, and repeats until ctx is cancelled. Cancellation is a
// clean exit. A failing or panicking run is logged and the task carries on.
func (t Task) Run(ctx context.Context) error {
	slog.Debug("task started", "task", t.Name)
	defer slog.Debug("task stopped", "task", t.Name)

	timer := time.NewTimer(t.Next())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if err := t.once(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("task run failed", "task", t.Name, "error", err)
		}
		if ctx.Err() != nil {
			return nil
		}
		timer.Reset(t.Next())
	}
}

func (t Task) once(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Do(ctx)
}
