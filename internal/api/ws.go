package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/npc-city/internal/city"
	"github.com/talgya/npc-city/internal/hub"
)

const (
	writeWait = 5 * time.Second
	readWait  = 5 * time.Minute
)

// inbound is what clients send on an agent topic.
type inbound struct {
	Action string `json:"action"`
	Text   string `json:"text"`
}

// handleWS subscribes the connection to a topic. On npc_<id> topics the
// client may also talk to the agent; any other frame is echoed back.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	topic := r.PathValue("topic")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id, feed := s.Hub.Subscribe(topic)
	defer s.Hub.Unsubscribe(topic, id)
	slog.Debug("websocket connected", "topic", topic, "id", id, "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Direct replies share the writer with the topic feed: a connection has
	// exactly one writer.
	direct := make(chan []byte, 8)
	writeErr := make(chan error, 1)
	go func() {
		for {
			var b []byte
			select {
			case <-ctx.Done():
				writeErr <- nil
				return
			case msg, ok := <-feed:
				if !ok {
					writeErr <- nil
					return
				}
				b = msg
			case b = <-direct:
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				writeErr <- err
				cancel()
				return
			}
		}
	}()

	agentID, onAgent := hub.ParseAgentTopic(topic)
	ip := clientIP(r)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		reply := s.dispatch(ctx, ip, agentID, onAgent, raw)
		if reply == nil {
			continue
		}
		b, err := json.Marshal(reply)
		if err != nil {
			continue
		}
		select {
		case direct <- b:
		case <-ctx.Done():
		}
	}

	cancel()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	select {
	case <-writeErr:
	case <-time.After(500 * time.Millisecond):
	}
	slog.Debug("websocket closed", "topic", topic, "id", id)
}

// dispatch handles one inbound frame and returns a message for this
// connection only, or nil when the answer goes out on the topic instead.
// Agent actions share the HTTP endpoints' per-IP budget.
func (s *Server) dispatch(ctx context.Context, ip string, agentID int64, onAgent bool, raw []byte) *hub.Message {
	var in inbound
	if !onAgent || json.Unmarshal(raw, &in) != nil || (in.Action != "message" && in.Action != "command") {
		return &hub.Message{Type: "echo", Data: string(raw)}
	}
	if !s.Limiter.Allow(ip) {
		return &hub.Message{Type: "error", Data: "rate limited"}
	}

	var err error
	if in.Action == "message" {
		_, err = s.City.SendMessage(ctx, agentID, in.Text)
	} else {
		_, err = s.City.SendCommand(ctx, agentID, in.Text)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, city.ErrAgentNotFound):
		return &hub.Message{Type: "error", Data: "NPC not found"}
	default:
		slog.Error("websocket action failed", "action", in.Action, "agent", agentID, "error", err)
		return &hub.Message{Type: "error", Data: "internal error"}
	}
}
