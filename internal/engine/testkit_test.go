package engine

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/talgya/npc-city/internal/city"
	"github.com/talgya/npc-city/internal/dialogue"
	"github.com/talgya/npc-city/internal/hub"
	"github.com/talgya/npc-city/internal/persistence"
)

// scriptedDice replays fixed rolls and returns zero once they run out.
type scriptedDice struct {
	ints   []int
	floats []float64
}

func (d *scriptedDice) Intn(n int) int {
	if len(d.ints) == 0 {
		return 0
	}
	v := d.ints[0]
	d.ints = d.ints[1:]
	if v >= n {
		panic("scripted roll out of range")
	}
	return v
}

func (d *scriptedDice) Float64() float64 {
	if len(d.floats) == 0 {
		return 0
	}
	v := d.floats[0]
	d.floats = d.floats[1:]
	return v
}

type fakeSpeaker struct {
	mu      sync.Mutex
	reply   string
	prompts []string
}

func (f *fakeSpeaker) Generate(_ context.Context, persona string, _ []dialogue.Turn, prompt string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, persona+" | "+prompt)
	return f.reply
}

type published struct {
	topic string
	msg   hub.Message
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (f *fakePublisher) Publish(topic string, msg hub.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{topic, msg})
}

func (f *fakePublisher) on(topic string) []hub.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []hub.Message
	for _, p := range f.msgs {
		if p.topic == topic {
			out = append(out, p.msg)
		}
	}
	return out
}

// refusingStore fails every commit.
type refusingStore struct {
	Store
}

func (refusingStore) Apply(context.Context, city.Change) ([]city.Event, error) {
	return nil, errors.New("disk full")
}

var testRoster = []city.Profile{
	{Name: "Anna", Profession: "Barista", Personality: "friendly and chatty"},
	{Name: "Pyotr", Profession: "Programmer", Personality: "quiet"},
	{Name: "Olya", Profession: "Artist", Personality: "dreamy"},
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type world struct {
	db      *persistence.DB
	sim     *Simulation
	speaker *fakeSpeaker
	pub     *fakePublisher
}

func newWorld(t *testing.T, opts ...Option) *world {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "city.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	w := &world{db: db, speaker: &fakeSpeaker{reply: "Hello there."}, pub: &fakePublisher{}}
	opts = append([]Option{WithRoster(testRoster), WithSeed(1), WithClock(func() time.Time { return fixedNow })}, opts...)
	w.sim = NewSimulation(db, w.speaker, w.pub, opts...)
	if err := w.sim.Seed(context.Background(), rand.New(rand.NewSource(7))); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return w
}

func (w *world) agent(t *testing.T, name string) city.Agent {
	t.Helper()
	all, err := w.db.ListAgents(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, a := range all {
		if a.Name == name {
			return a
		}
	}
	t.Fatalf("agent %s not found", name)
	return city.Agent{}
}

// place moves an agent into a location with the given balance.
func (w *world) place(t *testing.T, name, location string, money int) city.Agent {
	t.Helper()
	a := w.agent(t, name)
	a.State.Location = location
	a.State.Money = money
	if _, err := w.db.Apply(context.Background(), city.Change{Agent: &a}); err != nil {
		t.Fatalf("place: %v", err)
	}
	return a
}

func (w *world) news(t *testing.T) []city.Event {
	t.Helper()
	events, err := w.db.RecentEvents(context.Background(), 100)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	return events
}
