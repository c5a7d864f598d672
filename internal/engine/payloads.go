package engine

import (
	"time"

	"github.com/talgya/npc-city/internal/city"
)

// MapUpdate is published on map_update when an agent changes position.
type MapUpdate struct {
	ID       int64   `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Location string  `json:"location"`
}

// StateUpdate is published on state_update when an agent's balance changes.
type StateUpdate struct {
	ID    int64           `json:"id"`
	State city.AgentState `json:"state"`
}

// NewsItem is published on news for every committed event.
type NewsItem struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	TS      string `json:"ts"`
}

// NewsItemFrom converts a stored event to its wire form.
func NewsItemFrom(e city.Event) NewsItem {
	return NewsItem{Title: e.Title, Content: e.Content, TS: e.Timestamp.UTC().Format(time.RFC3339)}
}

// ChatReply is published on an agent's topic when it answers a player.
type ChatReply struct {
	AgentID int64  `json:"npc_id"`
	From    string `json:"from"`
	Text    string `json:"text"`
}

// CommandReply is published on an agent's topic when it acknowledges a command.
type CommandReply struct {
	AgentID int64  `json:"npc_id"`
	Reply   string `json:"reply"`
}
