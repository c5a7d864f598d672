// Inbound commands from players and administrators, and read-only views of
// the city for the API.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"

	"github.com/talgya/npc-city/internal/city"
	"github.com/talgya/npc-city/internal/hub"
	"github.com/talgya/npc-city/internal/llm"
)

// lockedDice serializes a random source shared by concurrent request handlers.
type lockedDice struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (l *lockedDice) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Intn(n)
}

func (l *lockedDice) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64()
}

func (s *Simulation) commandDice() city.Dice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dice == nil {
		s.dice = &lockedDice{rng: rand.New(rand.NewSource(s.seed + 1))}
	}
	return s.dice
}

// SendMessage delivers a player's line to an agent and returns the reply.
// Both turns are stored together and the reply goes out on the agent's topic.
func (s *Simulation) SendMessage(ctx context.Context, agentID int64, text string) (string, error) {
	a, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return "", err
	}
	w, err := s.store.Weather(ctx)
	if err != nil {
		return "", fmt.Errorf("load weather: %w", err)
	}
	history, err := s.history(ctx, agentID)
	if err != nil {
		return "", err
	}

	reply := s.speaker.Generate(ctx, llm.MessagePersona(a.Name, a.Personality, string(w)), history, text)

	now := s.now().UTC()
	out := outcome{
		agentID: a.ID,
		dialogue: []city.DialogueTurn{
			{AgentID: a.ID, Role: city.RolePlayer, Content: "Player: " + text, CreatedAt: now},
			{AgentID: a.ID, Role: city.RoleAgent, Content: reply, CreatedAt: now},
		},
		publish: func(city.Agent) []publication {
			return []publication{{
				topic: hub.AgentTopic(a.ID),
				msg:   hub.Message{Type: "chat", Data: ChatReply{AgentID: a.ID, From: "npc", Text: reply}},
			}}
		},
	}
	if err := s.commit(ctx, out); err != nil {
		return "", err
	}
	return reply, nil
}

// SendCommand asks an agent to carry out an instruction and returns its
// acknowledgement. Commands of the form "go to <location>" also move the agent
// when the location exists.
func (s *Simulation) SendCommand(ctx context.Context, agentID int64, text string) (string, error) {
	a, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return "", err
	}

	reply := s.speaker.Generate(ctx, llm.CommandPersona(a.Name, text), nil, text)

	out := outcome{agentID: a.ID}
	if dest, ok := parseGoTo(text); ok {
		loc, err := s.store.GetLocation(ctx, dest)
		switch {
		case err == nil:
			out = relocate(a.ID, loc, s.commandDice())
		case errors.Is(err, city.ErrLocationNotFound):
			slog.Debug("command names unknown location", "agent", a.Name, "location", dest)
		default:
			return "", fmt.Errorf("get location: %w", err)
		}
	}

	out.dialogue = append(out.dialogue, city.DialogueTurn{
		AgentID:   a.ID,
		Role:      city.RoleCommand,
		Content:   "Command: " + reply,
		CreatedAt: s.now().UTC(),
	})
	moved := out.publish
	out.publish = func(committed city.Agent) []publication {
		var ps []publication
		if moved != nil {
			ps = moved(committed)
		}
		return append(ps, publication{
			topic: hub.AgentTopic(a.ID),
			msg:   hub.Message{Type: "command", Data: CommandReply{AgentID: a.ID, Reply: reply}},
		})
	}
	if err := s.commit(ctx, out); err != nil {
		return "", err
	}
	return reply, nil
}

// parseGoTo extracts the destination from "go to <place>". Place names are
// lowercased with spaces joined by underscores ("Mayor Office" → mayor_office).
func parseGoTo(text string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	_, rest, ok := strings.Cut(lower, "go to ")
	if !ok {
		return "", false
	}
	rest = strings.TrimRight(strings.TrimSpace(rest), ".!?,;")
	rest = strings.TrimPrefix(rest, "the ")
	if rest == "" {
		return "", false
	}
	return strings.Join(strings.Fields(rest), "_"), true
}

// Announce publishes a decree from the city administration as news.
func (s *Simulation) Announce(ctx context.Context, text string) (city.Event, error) {
	stored, err := s.store.Apply(ctx, city.Change{Events: []city.Event{s.event("New law", text)}})
	if err != nil {
		return city.Event{}, fmt.Errorf("record law: %w", err)
	}
	s.publishNews(stored)
	return stored[0], nil
}

// Snapshot returns every agent with its position and state.
func (s *Simulation) Snapshot(ctx context.Context) ([]city.Agent, error) {
	return s.store.ListAgents(ctx)
}

// Locations returns the city map.
func (s *Simulation) Locations(ctx context.Context) ([]city.Location, error) {
	return s.store.ListLocations(ctx)
}

// News returns the newest events first. A non-positive limit uses the default.
func (s *Simulation) News(ctx context.Context, limit int) ([]city.Event, error) {
	if limit <= 0 {
		limit = s.rules.NewsLimit
	}
	return s.store.RecentEvents(ctx, limit)
}

// History returns an agent's full conversation in order.
func (s *Simulation) History(ctx context.Context, agentID int64) ([]city.DialogueTurn, error) {
	if _, err := s.store.GetAgent(ctx, agentID); err != nil {
		return nil, err
	}
	return s.store.DialogueHistory(ctx, agentID, 0)
}

// Weather returns the current city weather.
func (s *Simulation) Weather(ctx context.Context) (city.Weather, error) {
	return s.store.Weather(ctx)
}
