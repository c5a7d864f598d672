// Action selection and effects for one agent tick.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/talgya/npc-city/internal/city"
	"github.com/talgya/npc-city/internal/dialogue"
	"github.com/talgya/npc-city/internal/hub"
	"github.com/talgya/npc-city/internal/llm"
)

// Action is what an agent does on a tick.
type Action string

const (
	ActionMove     Action = "move"
	ActionChat     Action = "chat"
	ActionWork     Action = "work"
	ActionShop     Action = "shop"
	ActionBusiness Action = "business"
	ActionDisaster Action = "disaster"
)

// AllActions is the full candidate set, in selection order.
var AllActions = []Action{ActionMove, ActionChat, ActionWork, ActionShop, ActionBusiness, ActionDisaster}

var moveOnly = []Action{ActionMove}

// Candidates returns the actions an agent may draw from under the given weather.
// Rain restricts the tick to a move with probability RainyMoveChance.
func (r Rules) Candidates(w city.Weather, d city.Dice) []Action {
	if w == city.Rainy && d.Float64() < r.RainyMoveChance {
		return moveOnly
	}
	return AllActions
}

// ChooseAction draws the next action uniformly from the candidate set.
func (r Rules) ChooseAction(w city.Weather, d city.Dice) Action {
	return city.Pick(d, r.Candidates(w, d))
}

// publication is a message to send once a change has committed.
type publication struct {
	topic string
	msg   hub.Message
}

// outcome is the effect of one action before it is committed. The agent
// row itself is never carried: update is applied to a fresh read at commit
// time so concurrent commands on the same agent are not overwritten.
type outcome struct {
	agentID  int64
	update   func(a *city.Agent)
	events   []city.Event
	dialogue []city.DialogueTurn
	publish  func(a city.Agent) []publication // Built from the committed agent
}

func (o outcome) skipped() bool {
	return o.update == nil && len(o.events) == 0 && len(o.dialogue) == 0 && o.publish == nil
}

// act computes the effect of action for agent. It never writes to the store.
func (s *Simulation) act(ctx context.Context, a city.Agent, action Action, w city.Weather, d city.Dice) (outcome, error) {
	switch action {
	case ActionMove:
		return s.move(ctx, a, w, d)
	case ActionChat:
		return s.chat(ctx, a, d)
	case ActionWork:
		return s.work(a, d), nil
	case ActionShop:
		return s.shop(a, d), nil
	case ActionBusiness:
		return s.business(ctx, a, d), nil
	case ActionDisaster:
		return s.disaster(ctx, a, d), nil
	default:
		return outcome{}, fmt.Errorf("unknown action %q", action)
	}
}

// pickDestination draws a location. When sunny the favoured location wins if
// either of two independent draws lands on it.
func (r Rules) pickDestination(locs []city.Location, w city.Weather, d city.Dice) city.Location {
	target := city.Pick(d, locs)
	if w != city.Sunny || r.FavouredOnSun == "" || target.Name == r.FavouredOnSun {
		return target
	}
	if again := city.Pick(d, locs); again.Name == r.FavouredOnSun {
		return again
	}
	return target
}

func (s *Simulation) move(ctx context.Context, a city.Agent, w city.Weather, d city.Dice) (outcome, error) {
	locs, err := s.store.ListLocations(ctx)
	if err != nil {
		return outcome{}, fmt.Errorf("list locations: %w", err)
	}
	if len(locs) == 0 {
		return outcome{}, nil
	}

	target := s.rules.pickDestination(locs, w, d)
	return relocate(a.ID, target, d), nil
}

// relocate places the agent at a random point inside target.
func relocate(agentID int64, target city.Location, d city.Dice) outcome {
	x, y := target.RandomPoint(d)
	return outcome{
		agentID: agentID,
		update: func(a *city.Agent) {
			a.X, a.Y = x, y
			a.State.Location = target.Name
		},
		publish: func(a city.Agent) []publication {
			return []publication{{
				topic: hub.TopicMapUpdate,
				msg:   hub.Message{Type: hub.TopicMapUpdate, Data: MapUpdate{ID: a.ID, X: a.X, Y: a.Y, Location: a.State.Location}},
			}}
		},
	}
}

func (s *Simulation) chat(ctx context.Context, a city.Agent, d city.Dice) (outcome, error) {
	all, err := s.store.ListAgents(ctx)
	if err != nil {
		return outcome{}, fmt.Errorf("list agents: %w", err)
	}
	others := make([]city.Agent, 0, len(all))
	for _, o := range all {
		if o.ID != a.ID {
			others = append(others, o)
		}
	}
	if len(others) == 0 {
		return outcome{}, nil
	}
	other := city.Pick(d, others)
	relation := a.RelationTo(other.Name)

	history, err := s.history(ctx, a.ID)
	if err != nil {
		return outcome{}, err
	}
	persona := llm.ChatPersona(a.Name, a.Personality, other.Name, string(relation))
	reply := s.speaker.Generate(ctx, persona, history, llm.ChatOpener(other.Name))

	out := outcome{
		agentID: a.ID,
		dialogue: []city.DialogueTurn{{
			AgentID:   a.ID,
			Role:      city.RoleAgent,
			Content:   fmt.Sprintf("To %s: %s", other.Name, reply),
			CreatedAt: s.now().UTC(),
		}},
		events: []city.Event{s.event(fmt.Sprintf("Conversation: %s and %s", a.Name, other.Name), reply)},
	}
	if next, changed := s.rules.judge(reply); changed && next != relation {
		slog.Debug("relationship changed", "agent", a.Name, "other", other.Name, "from", relation, "to", next)
		out.update = func(a *city.Agent) {
			if a.State.Relations == nil {
				a.State.Relations = make(map[string]city.Relationship)
			}
			a.State.Relations[other.Name] = next
		}
	}
	return out, nil
}

func (s *Simulation) work(a city.Agent, d city.Dice) outcome {
	if a.State.Location != s.rules.WorkLocation {
		return outcome{}
	}
	pay := s.rules.WorkPay.Draw(d)
	return outcome{
		agentID: a.ID,
		update:  func(a *city.Agent) { a.State.Money += pay },
		publish: stateUpdate,
	}
}

func (s *Simulation) shop(a city.Agent, d city.Dice) outcome {
	if a.State.Location != s.rules.ShopLocation {
		return outcome{}
	}
	spent := s.rules.ShopSpend.Draw(d)
	return outcome{
		agentID: a.ID,
		update:  func(a *city.Agent) { a.State.Money = max(0, a.State.Money-spent) },
		events:  []city.Event{s.event("Purchase: "+a.Name, fmt.Sprintf("%s bought goods for %d coins.", a.Name, spent))},
	}
}

func (s *Simulation) business(ctx context.Context, a city.Agent, d city.Dice) outcome {
	if a.State.HasBusiness() {
		income := s.rules.BusinessIncome.Draw(d)
		return outcome{
			agentID: a.ID,
			update:  func(a *city.Agent) { a.State.Money += income },
			publish: stateUpdate,
		}
	}

	idea := s.speaker.Generate(ctx, llm.BusinessPersona(a.Name, a.Profession), nil, llm.BusinessPrompt)
	return outcome{
		agentID: a.ID,
		update:  func(a *city.Agent) { a.State.Business = idea },
		events:  []city.Event{s.event("New business: "+a.Name, idea)},
	}
}

func (s *Simulation) disaster(ctx context.Context, a city.Agent, d city.Dice) outcome {
	if len(s.rules.DisasterKinds) == 0 || d.Float64() >= s.rules.DisasterChance {
		return outcome{}
	}
	kind := city.Pick(d, s.rules.DisasterKinds)
	desc := s.speaker.Generate(ctx, llm.DisasterPersona(a.Name), nil, llm.DisasterPrompt(kind))
	loss := s.rules.DisasterLoss.Draw(d)
	return outcome{
		agentID: a.ID,
		// Losses are not clamped: a disaster can push an agent into debt.
		update: func(a *city.Agent) { a.State.Money -= loss },
		events: []city.Event{s.event(fmt.Sprintf("Disaster: %s at %s", kind, a.Name), desc)},
	}
}

func stateUpdate(a city.Agent) []publication {
	return []publication{{
		topic: hub.TopicStateUpdate,
		msg:   hub.Message{Type: hub.TopicStateUpdate, Data: StateUpdate{ID: a.ID, State: a.State}},
	}}
}

// history loads an agent's recent conversation in AI role terms.
func (s *Simulation) history(ctx context.Context, agentID int64) ([]dialogue.Turn, error) {
	turns, err := s.store.DialogueHistory(ctx, agentID, s.rules.HistoryTurns)
	if err != nil {
		return nil, fmt.Errorf("dialogue history: %w", err)
	}
	out := make([]dialogue.Turn, 0, len(turns))
	for _, t := range turns {
		role := "assistant"
		if t.Role == city.RolePlayer {
			role = "user"
		}
		out = append(out, dialogue.Turn{Role: role, Content: t.Content})
	}
	return out, nil
}
