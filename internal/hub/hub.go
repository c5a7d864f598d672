// Package hub fans topic-scoped messages out to subscribers.
// Delivery is best effort: a subscriber that falls behind loses messages
// rather than slowing the publisher.
package hub

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Well-known topics.
const (
	TopicMapUpdate   = "map_update"
	TopicNews        = "news"
	TopicStateUpdate = "state_update"
)

// AgentTopic returns the per-agent chat/command topic.
func AgentTopic(agentID int64) string {
	return agentTopicPrefix + strconv.FormatInt(agentID, 10)
}

const agentTopicPrefix = "npc_"

// ParseAgentTopic extracts the agent ID from an npc_<id> topic.
func ParseAgentTopic(topic string) (int64, bool) {
	rest, ok := strings.CutPrefix(topic, agentTopicPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Message is the envelope delivered to subscribers.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Recorder archives published messages (see persistence/journal).
type Recorder interface {
	Record(topic string, payload any) error
}

type subscriber struct {
	ch chan []byte
}

// Hub is a topic → subscribers registry. Safe for concurrent use.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[string]*subscriber
	buffer int

	journal Recorder
	dropped atomic.Int64
}

// New creates a hub whose subscriber channels hold buffer messages.
func New(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		topics: make(map[string]map[string]*subscriber),
		buffer: buffer,
	}
}

// SetJournal attaches a recorder that sees every published message.
func (h *Hub) SetJournal(r Recorder) {
	h.mu.Lock()
	h.journal = r
	h.mu.Unlock()
}

// Subscribe registers a new subscriber on topic and returns its ID and feed.
func (h *Hub) Subscribe(topic string) (string, <-chan []byte) {
	id := uuid.NewString()
	sub := &subscriber{ch: make(chan []byte, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]*subscriber)
		h.topics[topic] = subs
	}
	subs[id] = sub
	slog.Debug("subscriber joined", "topic", topic, "id", id, "count", len(subs))
	return id, sub.ch
}

// Unsubscribe removes a subscriber and closes its feed. Unknown IDs are ignored.
func (h *Hub) Unsubscribe(topic, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[topic]
	if !ok {
		return
	}
	if sub, ok := subs[id]; ok {
		delete(subs, id)
		close(sub.ch)
	}
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
}

// Subscribers returns the current subscriber count for topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Publish delivers msg to every current subscriber of topic. Never blocks.
func (h *Hub) Publish(topic string, msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		slog.Error("publish encode failed", "topic", topic, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.journal != nil {
		if err := h.journal.Record(topic, msg); err != nil {
			slog.Warn("journal write failed", "topic", topic, "error", err)
		}
	}

	for id, sub := range h.topics[topic] {
		select {
		case sub.ch <- b:
		default:
			h.dropped.Add(1)
			slog.Debug("subscriber full, message dropped", "topic", topic, "id", id)
		}
	}
}
