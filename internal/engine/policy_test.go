package engine

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/talgya/npc-city/internal/city"
	"github.com/talgya/npc-city/internal/dialogue"
	"github.com/talgya/npc-city/internal/hub"
)

func TestSeed_RelationsCoverEveryOtherAgent(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	all, err := w.db.ListAgents(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != len(testRoster) {
		t.Fatalf("expected %d agents, got %d", len(testRoster), len(all))
	}
	for _, a := range all {
		if _, ok := a.State.Relations[a.Name]; ok {
			t.Fatalf("%s has a relation to itself", a.Name)
		}
		if len(a.State.Relations) != len(testRoster)-1 {
			t.Fatalf("%s has %d relations, want %d", a.Name, len(a.State.Relations), len(testRoster)-1)
		}
		if a.State.Money != city.DefaultMoney || a.State.Location != city.DefaultLocation {
			t.Fatalf("%s not seeded with defaults: %+v", a.Name, a.State)
		}
		if a.X < 0 || a.X > MapWidth || a.Y < 0 || a.Y > MapHeight {
			t.Fatalf("%s placed off the map at (%v, %v)", a.Name, a.X, a.Y)
		}
	}
}

func TestSeed_Idempotent(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	if err := w.sim.Seed(ctx, rand.New(rand.NewSource(2))); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	n, err := w.db.CountAgents(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != len(testRoster) {
		t.Fatalf("expected %d agents after reseed, got %d", len(testRoster), n)
	}
	locs, err := w.db.ListLocations(ctx)
	if err != nil || len(locs) != len(city.DefaultLocations()) {
		t.Fatalf("expected default locations, got %d (%v)", len(locs), err)
	}
}

func TestShop_SpendsAndReportsPurchase(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	anna := w.place(t, "Anna", city.LocationShop, 100)

	// ShopSpend is 5..15: roll 10 spends the maximum.
	if err := w.sim.Perform(ctx, anna.ID, ActionShop, &scriptedDice{ints: []int{10}}); err != nil {
		t.Fatalf("shop: %v", err)
	}

	if got := w.agent(t, "Anna").State.Money; got != 85 {
		t.Fatalf("expected 85 coins left, got %d", got)
	}
	events := w.news(t)
	if len(events) != 1 || events[0].Title != "Purchase: Anna" {
		t.Fatalf("expected purchase event, got %+v", events)
	}
	if !strings.Contains(events[0].Content, "15") {
		t.Fatalf("purchase should name the amount: %q", events[0].Content)
	}
	if n := len(w.pub.on(hub.TopicNews)); n != 1 {
		t.Fatalf("expected one news publication, got %d", n)
	}
}

func TestShop_NeverGoesBelowZero(t *testing.T) {
	w := newWorld(t)
	anna := w.place(t, "Anna", city.LocationShop, 3)
	if err := w.sim.Perform(context.Background(), anna.ID, ActionShop, &scriptedDice{ints: []int{10}}); err != nil {
		t.Fatalf("shop: %v", err)
	}
	if got := w.agent(t, "Anna").State.Money; got != 0 {
		t.Fatalf("expected balance clamped at 0, got %d", got)
	}
}

func TestWorkAndShop_NoOpElsewhere(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	anna := w.place(t, "Anna", city.LocationPark, 100)

	for _, action := range []Action{ActionWork, ActionShop} {
		if err := w.sim.Perform(ctx, anna.ID, action, &scriptedDice{}); err != nil {
			t.Fatalf("%s: %v", action, err)
		}
	}
	if got := w.agent(t, "Anna").State.Money; got != 100 {
		t.Fatalf("balance changed away from work/shop: %d", got)
	}
	if len(w.news(t)) != 0 || len(w.pub.msgs) != 0 {
		t.Fatalf("no-op actions should leave no trace")
	}
}

func TestWork_PaysAndPublishesState(t *testing.T) {
	w := newWorld(t)
	anna := w.place(t, "Anna", city.LocationWork, 100)
	if err := w.sim.Perform(context.Background(), anna.ID, ActionWork, &scriptedDice{ints: []int{0}}); err != nil {
		t.Fatalf("work: %v", err)
	}
	if got := w.agent(t, "Anna").State.Money; got != 110 {
		t.Fatalf("expected 110, got %d", got)
	}
	updates := w.pub.on(hub.TopicStateUpdate)
	if len(updates) != 1 || updates[0].Data.(StateUpdate).State.Money != 110 {
		t.Fatalf("expected one state update with the new balance, got %+v", updates)
	}
	if len(w.news(t)) != 0 {
		t.Fatalf("work should not create news")
	}
}

func TestDisaster_CanPushIntoDebt(t *testing.T) {
	w := newWorld(t)
	w.speaker.reply = "The kitchen caught fire."
	anna := w.place(t, "Anna", city.LocationHome, 10)

	// Chance roll 0.05 < 0.1, kind index 0 (fire), loss roll 30 → 50.
	d := &scriptedDice{floats: []float64{0.05}, ints: []int{0, 30}}
	if err := w.sim.Perform(context.Background(), anna.ID, ActionDisaster, d); err != nil {
		t.Fatalf("disaster: %v", err)
	}
	if got := w.agent(t, "Anna").State.Money; got != -40 {
		t.Fatalf("expected -40, got %d", got)
	}
	events := w.news(t)
	if len(events) != 1 || events[0].Title != "Disaster: fire at Anna" || events[0].Content != "The kitchen caught fire." {
		t.Fatalf("unexpected disaster news %+v", events)
	}
}

func TestDisaster_UsuallyNothingHappens(t *testing.T) {
	w := newWorld(t)
	anna := w.place(t, "Anna", city.LocationHome, 10)
	if err := w.sim.Perform(context.Background(), anna.ID, ActionDisaster, &scriptedDice{floats: []float64{0.5}}); err != nil {
		t.Fatalf("disaster: %v", err)
	}
	if got := w.agent(t, "Anna").State.Money; got != 10 {
		t.Fatalf("expected unchanged balance, got %d", got)
	}
}

func TestBusiness_FoundsThenEarns(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	w.speaker.reply = "A cat cafe."
	anna := w.place(t, "Anna", city.LocationHome, 100)

	if err := w.sim.Perform(ctx, anna.ID, ActionBusiness, &scriptedDice{}); err != nil {
		t.Fatalf("found business: %v", err)
	}
	if got := w.agent(t, "Anna"); got.State.Business != "A cat cafe." || got.State.Money != 100 {
		t.Fatalf("unexpected state after founding: %+v", got.State)
	}

	if err := w.sim.Perform(ctx, anna.ID, ActionBusiness, &scriptedDice{ints: []int{5}}); err != nil {
		t.Fatalf("earn: %v", err)
	}
	if got := w.agent(t, "Anna").State.Money; got != 110 {
		t.Fatalf("expected passive income of 10, got %d", got)
	}
	if n := len(w.news(t)); n != 1 {
		t.Fatalf("only founding is news, got %d events", n)
	}
}

func TestMove_PlacesInsideDestination(t *testing.T) {
	w := newWorld(t)
	anna := w.place(t, "Anna", city.LocationHome, 100)
	for i := 0; i < 20; i++ {
		if err := w.sim.Perform(context.Background(), anna.ID, ActionMove, rand.New(rand.NewSource(int64(i)))); err != nil {
			t.Fatalf("move: %v", err)
		}
		got := w.agent(t, "Anna")
		loc, err := w.db.GetLocation(context.Background(), got.State.Location)
		if err != nil {
			t.Fatalf("moved to unknown location %q", got.State.Location)
		}
		if !loc.Contains(got.X, got.Y) {
			t.Fatalf("(%v, %v) outside %s", got.X, got.Y, loc.Name)
		}
	}
	if n := len(w.pub.on(hub.TopicMapUpdate)); n != 20 {
		t.Fatalf("expected 20 map updates, got %d", n)
	}
}

func TestChat_AIFailureUsesFallbackEverywhere(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	sim := NewSimulation(w.db, dialogue.NewGenerator(nil, dialogue.Options{}), w.pub, WithRoster(testRoster))
	anna := w.agent(t, "Anna")

	if err := sim.Perform(ctx, anna.ID, ActionChat, &scriptedDice{}); err != nil {
		t.Fatalf("chat: %v", err)
	}

	turns, err := w.db.DialogueHistory(ctx, anna.ID, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(turns) != 1 || !strings.HasSuffix(turns[0].Content, dialogue.Fallback) {
		t.Fatalf("expected fallback dialogue turn, got %+v", turns)
	}
	events := w.news(t)
	if len(events) != 1 || events[0].Content != dialogue.Fallback || !strings.HasPrefix(events[0].Title, "Conversation: Anna and ") {
		t.Fatalf("expected fallback conversation news, got %+v", events)
	}
}

func TestChat_SentimentUpdatesRelationship(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	anna := w.agent(t, "Anna")

	// Index 0 among the others is Pyotr (ID order without Anna).
	w.speaker.reply = "I value our FRIENDSHIP."
	if err := w.sim.Perform(ctx, anna.ID, ActionChat, &scriptedDice{ints: []int{0}}); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if got := w.agent(t, "Anna").RelationTo("Pyotr"); got != city.Friend {
		t.Fatalf("expected friend, got %s", got)
	}

	w.speaker.reply = "Friendship? You fill me with anger."
	if err := w.sim.Perform(ctx, anna.ID, ActionChat, &scriptedDice{ints: []int{0}}); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if got := w.agent(t, "Anna").RelationTo("Pyotr"); got != city.Enemy {
		t.Fatalf("negative marker should win, got %s", got)
	}
}

func TestPerform_RefusedCommitPublishesNothing(t *testing.T) {
	w := newWorld(t)
	anna := w.place(t, "Anna", city.LocationShop, 100)
	sim := NewSimulation(refusingStore{w.db}, w.speaker, w.pub, WithRoster(testRoster))

	if err := sim.Perform(context.Background(), anna.ID, ActionShop, &scriptedDice{}); err == nil {
		t.Fatalf("expected commit error")
	}
	if len(w.pub.msgs) != 0 {
		t.Fatalf("published despite failed commit: %+v", w.pub.msgs)
	}
	if got := w.agent(t, "Anna").State.Money; got != 100 {
		t.Fatalf("balance changed despite failed commit: %d", got)
	}
}

func TestPerform_UnknownAgent(t *testing.T) {
	w := newWorld(t)
	err := w.sim.Perform(context.Background(), 999, ActionWork, &scriptedDice{})
	if !errors.Is(err, city.ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestCandidates_RainRestrictsAboutHalf(t *testing.T) {
	r := DefaultRules()
	rng := rand.New(rand.NewSource(42))
	restricted := 0
	for i := 0; i < 1000; i++ {
		if c := r.Candidates(city.Rainy, rng); len(c) == 1 && c[0] == ActionMove {
			restricted++
		}
	}
	if restricted < 430 || restricted > 570 {
		t.Fatalf("expected roughly 500 move-only ticks, got %d", restricted)
	}
	if c := r.Candidates(city.Stormy, rng); len(c) != len(AllActions) {
		t.Fatalf("storm should not restrict actions")
	}
}

func TestPickDestination_SunFavoursPark(t *testing.T) {
	r := DefaultRules()
	locs := city.DefaultLocations()
	parkIdx := 3

	got := r.pickDestination(locs, city.Sunny, &scriptedDice{ints: []int{0, parkIdx}})
	if got.Name != city.LocationPark {
		t.Fatalf("second draw on the park should win, got %s", got.Name)
	}
	got = r.pickDestination(locs, city.Sunny, &scriptedDice{ints: []int{0, 1}})
	if got.Name != city.LocationHome {
		t.Fatalf("expected first draw to stand, got %s", got.Name)
	}
	got = r.pickDestination(locs, city.Rainy, &scriptedDice{ints: []int{0, parkIdx}})
	if got.Name != city.LocationHome {
		t.Fatalf("rain should draw once, got %s", got.Name)
	}
}

func TestJudge(t *testing.T) {
	r := DefaultRules()
	cases := []struct {
		reply string
		want  city.Relationship
		ok    bool
	}{
		{"Such anger!", city.Enemy, true},
		{"дружба и злость", city.Enemy, true},
		{"Дружба навсегда", city.Friend, true},
		{"Nice weather.", "", false},
	}
	for _, c := range cases {
		got, ok := r.judge(c.reply)
		if got != c.want || ok != c.ok {
			t.Fatalf("judge(%q) = %q, %v; want %q, %v", c.reply, got, ok, c.want, c.ok)
		}
	}
}
