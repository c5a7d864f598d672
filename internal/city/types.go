// Package city provides the world data model: agents, locations, weather, events and dialogue.
package city

import (
	"strings"
	"time"
)

// Relationship is the label one agent holds toward another.
type Relationship string

const (
	Friend  Relationship = "friend"
	Neutral Relationship = "neutral"
	Enemy   Relationship = "enemy"
)

// AllRelationships lists every valid relationship label.
var AllRelationships = []Relationship{Friend, Neutral, Enemy}

// ParseRelationship maps a stored label to a Relationship. Unknown labels are neutral.
func ParseRelationship(s string) Relationship {
	switch Relationship(strings.ToLower(strings.TrimSpace(s))) {
	case Friend:
		return Friend
	case Enemy:
		return Enemy
	default:
		return Neutral
	}
}

// Weather is the single world-wide weather value.
type Weather string

const (
	Sunny  Weather = "sunny"
	Rainy  Weather = "rainy"
	Stormy Weather = "stormy"
)

// AllWeather lists the weather values the weather cycle draws from.
var AllWeather = []Weather{Sunny, Rainy, Stormy}

// ParseWeather maps a stored value to a Weather, defaulting to sunny.
func ParseWeather(s string) Weather {
	switch Weather(strings.ToLower(strings.TrimSpace(s))) {
	case Rainy:
		return Rainy
	case Stormy:
		return Stormy
	default:
		return Sunny
	}
}

// Default state values for a freshly constructed agent.
const (
	DefaultMood     = "neutral"
	DefaultMoney    = 100
	DefaultLocation = "home"
)

// AgentState is the mutable bundle an agent carries between ticks.
type AgentState struct {
	Mood      string                  `json:"mood"`
	Money     int                     `json:"money"`
	Location  string                  `json:"location"`
	Business  string                  `json:"business,omitempty"` // Empty until the agent has an idea
	Relations map[string]Relationship `json:"relations"`
}

// NewAgentState returns the default state for a newly seeded agent.
func NewAgentState() AgentState {
	return AgentState{
		Mood:      DefaultMood,
		Money:     DefaultMoney,
		Location:  DefaultLocation,
		Relations: make(map[string]Relationship),
	}
}

// HasBusiness reports whether the agent has recorded a business idea.
func (s AgentState) HasBusiness() bool {
	return strings.TrimSpace(s.Business) != ""
}

// Clone returns a deep copy so that effects never alias a loaded row.
func (s AgentState) Clone() AgentState {
	c := s
	c.Relations = make(map[string]Relationship, len(s.Relations))
	for k, v := range s.Relations {
		c.Relations[k] = v
	}
	return c
}

// Agent is a simulated resident of the city.
type Agent struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Profession  string     `json:"profession"`
	Personality string     `json:"personality"`
	X           float64    `json:"x"`
	Y           float64    `json:"y"`
	State       AgentState `json:"state"`
}

// Normalize fills missing state fields with defaults and drops any self-relationship.
// Applied whenever an agent is constructed or loaded from storage.
func (a *Agent) Normalize() {
	if strings.TrimSpace(a.State.Mood) == "" {
		a.State.Mood = DefaultMood
	}
	if strings.TrimSpace(a.State.Location) == "" {
		a.State.Location = DefaultLocation
	}
	if a.State.Relations == nil {
		a.State.Relations = make(map[string]Relationship)
	}
	delete(a.State.Relations, a.Name)
	for k, v := range a.State.Relations {
		a.State.Relations[k] = ParseRelationship(string(v))
	}
}

// RelationTo returns the agent's label toward other, neutral when unknown.
func (a Agent) RelationTo(other string) Relationship {
	if r, ok := a.State.Relations[other]; ok {
		return r
	}
	return Neutral
}

// Clone returns a deep copy of the agent.
func (a Agent) Clone() Agent {
	a.State = a.State.Clone()
	return a
}

// Location is a named axis-aligned rectangle on the city map.
type Location struct {
	Name string  `json:"name" db:"name" yaml:"name"`
	XMin float64 `json:"x_min" db:"x_min" yaml:"x_min"`
	XMax float64 `json:"x_max" db:"x_max" yaml:"x_max"`
	YMin float64 `json:"y_min" db:"y_min" yaml:"y_min"`
	YMax float64 `json:"y_max" db:"y_max" yaml:"y_max"`
}

// Contains reports whether (x, y) lies inside the rectangle.
func (l Location) Contains(x, y float64) bool {
	return x >= l.XMin && x <= l.XMax && y >= l.YMin && y <= l.YMax
}

// RandomPoint draws a uniform point inside the rectangle.
func (l Location) RandomPoint(d Dice) (float64, float64) {
	x := l.XMin + d.Float64()*(l.XMax-l.XMin)
	y := l.YMin + d.Float64()*(l.YMax-l.YMin)
	return x, y
}

// Event is an entry in the city news log.
type Event struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"ts"`
}

// Role identifies who produced a dialogue turn.
type Role string

const (
	RolePlayer  Role = "player"
	RoleAgent   Role = "agent"
	RoleCommand Role = "command"
)

// DialogueTurn is one entry in an agent's conversation history.
type DialogueTurn struct {
	ID        int64     `json:"id"`
	AgentID   int64     `json:"agent_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
