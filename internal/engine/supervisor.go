package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"golang.org/x/sync/errgroup"
)

// ErrRunning is returned by Start when the loops are already running.
var ErrRunning = errors.New("simulation already running")

// Start launches one loop per stored agent plus the weather and election
// cycles. It returns immediately; loops run until Stop or ctx is cancelled.
func (s *Simulation) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRunning
	}

	all, err := s.store.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range all {
		g.Go(func() error { return s.agentTask(a.ID).Run(gctx) })
	}

	weatherRng := rand.New(rand.NewSource(s.seed - 1))
	weather := Task{
		Name: "weather",
		Next: Every(s.rules.WeatherInterval),
		Do: func(ctx context.Context) error {
			_, err := s.ChangeWeather(ctx, weatherRng)
			return err
		},
	}
	electionRng := rand.New(rand.NewSource(s.seed - 2))
	election := Task{
		Name: "election",
		Next: Every(s.rules.ElectionInterval),
		Do: func(ctx context.Context) error {
			_, err := s.HoldElection(ctx, electionRng)
			return err
		},
	}
	g.Go(func() error { return weather.Run(gctx) })
	g.Go(func() error { return election.Run(gctx) })

	s.cancel = cancel
	s.group = g
	s.running = true
	slog.Info("simulation started", "agents", len(all))
	return nil
}

// Stop cancels every loop and waits for them to exit.
func (s *Simulation) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	return s.Wait()
}

// Wait blocks until every loop has exited.
func (s *Simulation) Wait() error {
	s.mu.Lock()
	g := s.group
	s.mu.Unlock()
	if g == nil {
		return nil
	}
	err := g.Wait()

	s.mu.Lock()
	if s.group == g {
		s.running = false
		s.cancel = nil
		s.group = nil
	}
	s.mu.Unlock()
	slog.Info("simulation stopped")
	return err
}
