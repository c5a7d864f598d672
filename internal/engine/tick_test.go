package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestTask_SurvivesFailuresAndPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	task := Task{
		Name: "flaky",
		Next: Every(time.Millisecond),
		Do: func(context.Context) error {
			switch runs.Add(1) {
			case 1:
				panic("boom")
			case 2:
				return errors.New("transient")
			case 4:
				cancel()
			}
			return nil
		},
	}

	done := make(chan error, 1)
	go func() { done <- task.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean exit, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("task did not stop")
	}
	if n := runs.Load(); n != 4 {
		t.Fatalf("expected 4 runs, got %d", n)
	}
}

func TestTask_CancelledBeforeFirstRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	task := Task{
		Name: "idle",
		Next: Every(time.Hour),
		Do: func(context.Context) error {
			t.Errorf("should not run")
			return nil
		},
	}
	if err := task.Run(ctx); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
