package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/talgya/npc-city/internal/city"
	"github.com/talgya/npc-city/internal/hub"
)

// agentTask is one agent's autonomous loop. The random source belongs to the
// loop and is never shared with another goroutine.
func (s *Simulation) agentTask(id int64) Task {
	rng := rand.New(rand.NewSource(s.seed + id*7919))
	return Task{
		Name: fmt.Sprintf("agent-%d", id),
		Next: func() time.Duration { return s.rules.sleepFor(rng) },
		Do: func(ctx context.Context) error {
			_, err := s.Step(ctx, id, rng)
			return err
		},
	}
}

// Step runs one autonomous tick for an agent: it draws an action under the
// current weather and performs it.
func (s *Simulation) Step(ctx context.Context, agentID int64, d city.Dice) (Action, error) {
	w, err := s.store.Weather(ctx)
	if err != nil {
		return "", fmt.Errorf("load weather: %w", err)
	}
	action := s.rules.ChooseAction(w, d)
	return action, s.perform(ctx, agentID, action, w, d)
}

// Perform runs one specific action for an agent under the current weather.
func (s *Simulation) Perform(ctx context.Context, agentID int64, action Action, d city.Dice) error {
	w, err := s.store.Weather(ctx)
	if err != nil {
		return fmt.Errorf("load weather: %w", err)
	}
	return s.perform(ctx, agentID, action, w, d)
}

func (s *Simulation) perform(ctx context.Context, agentID int64, action Action, w city.Weather, d city.Dice) error {
	a, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return err
	}
	out, err := s.act(ctx, a, action, w, d)
	if err != nil {
		return fmt.Errorf("%s %s: %w", a.Name, action, err)
	}
	if out.skipped() {
		slog.Debug("action had no effect", "agent", a.Name, "action", action, "location", a.State.Location)
		return nil
	}
	if err := s.commit(ctx, out); err != nil {
		return fmt.Errorf("%s %s: %w", a.Name, action, err)
	}
	slog.Debug("action performed", "agent", a.Name, "action", action, "money", a.State.Money)
	return nil
}

// commit stores the outcome in one transaction, then announces it. Nothing
// is published when the store refuses the change.
//
// Agent updates are applied to a fresh read taken under the agent's lock, so
// a tick that waited on the AI cannot overwrite a command committed
// meanwhile.
func (s *Simulation) commit(ctx context.Context, out outcome) error {
	unlock := s.lockAgent(out.agentID)
	defer unlock()

	change := city.Change{Events: out.events, Dialogue: out.dialogue}
	committed := city.Agent{ID: out.agentID}
	if out.update != nil {
		fresh, err := s.store.GetAgent(ctx, out.agentID)
		if err != nil {
			return err
		}
		out.update(&fresh)
		change.Agent = &fresh
		committed = fresh
	}

	if !change.Empty() {
		stored, err := s.store.Apply(ctx, change)
		if err != nil {
			return fmt.Errorf("apply: %w", err)
		}
		s.publishNews(stored)
	}
	if out.publish != nil {
		for _, p := range out.publish(committed) {
			s.pub.Publish(p.topic, p.msg)
		}
	}
	return nil
}

// lockAgent serializes commits touching one agent and returns the unlock.
func (s *Simulation) lockAgent(id int64) func() {
	s.locksMu.Lock()
	if s.agentLocks == nil {
		s.agentLocks = make(map[int64]*sync.Mutex)
	}
	mu, ok := s.agentLocks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.agentLocks[id] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func (s *Simulation) publishNews(events []city.Event) {
	for _, e := range events {
		s.pub.Publish(hub.TopicNews, hub.Message{Type: hub.TopicNews, Data: NewsItemFrom(e)})
	}
}
