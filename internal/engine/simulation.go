// Package engine runs the city: one autonomous loop per agent, the weather and
// election cycles, the action rules, and the inbound command surface.
package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/npc-city/internal/city"
	"github.com/talgya/npc-city/internal/dialogue"
	"github.com/talgya/npc-city/internal/hub"
)

// Store is the world state the engine reads and commits to.
// *persistence.DB satisfies it.
type Store interface {
	CountAgents(ctx context.Context) (int, error)
	InsertAgents(ctx context.Context, agents []city.Agent) error
	ListAgents(ctx context.Context) ([]city.Agent, error)
	GetAgent(ctx context.Context, id int64) (city.Agent, error)

	EnsureLocations(ctx context.Context, locs []city.Location) error
	ListLocations(ctx context.Context) ([]city.Location, error)
	GetLocation(ctx context.Context, name string) (city.Location, error)

	EnsureWeather(ctx context.Context, initial city.Weather) error
	Weather(ctx context.Context) (city.Weather, error)
	SetWeather(ctx context.Context, w city.Weather, events ...city.Event) ([]city.Event, error)

	Apply(ctx context.Context, c city.Change) ([]city.Event, error)
	RecentEvents(ctx context.Context, limit int) ([]city.Event, error)
	DialogueHistory(ctx context.Context, agentID int64, limit int) ([]city.DialogueTurn, error)
}

// Speaker produces agent dialogue. *dialogue.Generator satisfies it.
type Speaker interface {
	Generate(ctx context.Context, persona string, history []dialogue.Turn, prompt string) string
}

// Publisher delivers topic messages to observers. *hub.Hub satisfies it.
type Publisher interface {
	Publish(topic string, msg hub.Message)
}

// Simulation holds the engine's collaborators and the running loops.
type Simulation struct {
	store   Store
	speaker Speaker
	pub     Publisher
	rules   Rules
	roster  []city.Profile
	locs    []city.Location
	seed    int64
	now     func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	running bool
	rounds  int
	dice    *lockedDice

	locksMu    sync.Mutex
	agentLocks map[int64]*sync.Mutex
}

// Option customizes a Simulation.
type Option func(*Simulation)

// WithRules overrides the default action rules.
func WithRules(r Rules) Option {
	return func(s *Simulation) { s.rules = r }
}

// WithRoster overrides the seeded population.
func WithRoster(p []city.Profile) Option {
	return func(s *Simulation) { s.roster = p }
}

// WithLocations overrides the seeded map.
func WithLocations(l []city.Location) Option {
	return func(s *Simulation) { s.locs = l }
}

// WithSeed sets the base seed for per-loop random sources.
func WithSeed(seed int64) Option {
	return func(s *Simulation) { s.seed = seed }
}

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Simulation) { s.now = now }
}

// NewSimulation wires a simulation around its collaborators.
func NewSimulation(store Store, speaker Speaker, pub Publisher, opts ...Option) *Simulation {
	s := &Simulation{
		store:   store,
		speaker: speaker,
		pub:     pub,
		rules:   DefaultRules(),
		roster:  city.DefaultRoster(),
		locs:    city.DefaultLocations(),
		seed:    time.Now().UnixNano(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rules returns the active action rules.
func (s *Simulation) Rules() Rules {
	return s.rules
}

func (s *Simulation) event(title, content string) city.Event {
	return city.Event{Title: title, Content: content, Timestamp: s.now().UTC()}
}
