package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan []byte) Message {
	t.Helper()
	select {
	case b := <-ch:
		var m Message
		if err := json.Unmarshal(b, &m); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return m
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for message")
	}
	return Message{}
}

func TestPublish_DeliversOnlyToTopic(t *testing.T) {
	h := New(4)
	_, news := h.Subscribe(TopicNews)
	_, mapCh := h.Subscribe(TopicMapUpdate)

	h.Publish(TopicNews, Message{Type: TopicNews, Data: map[string]string{"title": "hello"}})

	m := recv(t, news)
	if m.Type != TopicNews {
		t.Fatalf("unexpected type %q", m.Type)
	}
	select {
	case b := <-mapCh:
		t.Fatalf("map subscriber got unrelated message %s", b)
	default:
	}
}

func TestPublish_NeverBlocksOnSlowSubscriber(t *testing.T) {
	h := New(1)
	_, ch := h.Subscribe(TopicNews)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			h.Publish(TopicNews, Message{Type: TopicNews, Data: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publish blocked on a full subscriber")
	}
	if h.Dropped() != 9 {
		t.Fatalf("expected 9 drops, got %d", h.Dropped())
	}
	if m := recv(t, ch); m.Data.(float64) != 0 {
		t.Fatalf("expected first message to survive, got %v", m.Data)
	}
}

func TestUnsubscribe_ClosesFeed(t *testing.T) {
	h := New(1)
	id, ch := h.Subscribe("npc_1")
	if h.Subscribers("npc_1") != 1 {
		t.Fatalf("expected one subscriber")
	}
	h.Unsubscribe("npc_1", id)
	h.Unsubscribe("npc_1", id)

	if _, ok := <-ch; ok {
		t.Fatalf("feed should be closed")
	}
	if h.Subscribers("npc_1") != 0 {
		t.Fatalf("expected no subscribers")
	}
	h.Publish("npc_1", Message{Type: "chat"})
}

type recordingJournal struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (r *recordingJournal) Record(topic string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return r.err
}

func TestPublish_RecordsToJournalEvenWithoutSubscribers(t *testing.T) {
	h := New(1)
	j := &recordingJournal{err: errors.New("disk full")}
	h.SetJournal(j)

	h.Publish(TopicNews, Message{Type: TopicNews})
	h.Publish(TopicStateUpdate, Message{Type: TopicStateUpdate})

	if len(j.topics) != 2 || j.topics[0] != TopicNews {
		t.Fatalf("unexpected journal topics %v", j.topics)
	}
}

func TestAgentTopic_RoundTrip(t *testing.T) {
	topic := AgentTopic(42)
	if topic != "npc_42" {
		t.Fatalf("unexpected topic %q", topic)
	}
	id, ok := ParseAgentTopic(topic)
	if !ok || id != 42 {
		t.Fatalf("ParseAgentTopic(%q) = %d, %v", topic, id, ok)
	}
	for _, bad := range []string{"news", "npc_", "npc_x"} {
		if _, ok := ParseAgentTopic(bad); ok {
			t.Fatalf("ParseAgentTopic(%q) should fail", bad)
		}
	}
}
