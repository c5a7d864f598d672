// Package api serves the city over HTTP and WebSocket.
// GET endpoints are public. POST /law requires the admin bearer token; the
// player endpoints are rate limited per client.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"

	"github.com/talgya/npc-city/internal/city"
	"github.com/talgya/npc-city/internal/engine"
)

// City is the simulation surface the API drives. *engine.Simulation satisfies it.
type City interface {
	SendMessage(ctx context.Context, agentID int64, text string) (string, error)
	SendCommand(ctx context.Context, agentID int64, text string) (string, error)
	Announce(ctx context.Context, text string) (city.Event, error)
	Snapshot(ctx context.Context) ([]city.Agent, error)
	Locations(ctx context.Context) ([]city.Location, error)
	News(ctx context.Context, limit int) ([]city.Event, error)
	History(ctx context.Context, agentID int64) ([]city.DialogueTurn, error)
	Weather(ctx context.Context) (city.Weather, error)
}

// Broker is the topic fan-out the WebSocket endpoint subscribes to.
// *hub.Hub satisfies it.
type Broker interface {
	Subscribe(topic string) (string, <-chan []byte)
	Unsubscribe(topic, id string)
}

// Server serves the city state.
type Server struct {
	City        City
	Hub         Broker
	AdminKey    string   // Bearer token for POST /law. Empty = open.
	CORSOrigins []string // "*" allows any origin
	Limiter     *RateLimiter
	NewsLimit   int

	upgrader websocket.Upgrader
	now      func() time.Time
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	if s.now == nil {
		s.now = time.Now
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.originAllowed,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleWelcome)
	mux.HandleFunc("GET /map", s.handleMap)
	mux.HandleFunc("GET /locations", s.handleLocations)
	mux.HandleFunc("GET /news", s.handleNews)
	mux.HandleFunc("GET /chat_history/{id}", s.handleHistory)
	mux.HandleFunc("GET /weather", s.handleWeather)

	mux.HandleFunc("POST /law", s.adminOnly(s.handleLaw))

	mux.HandleFunc("POST /agent/{id}/message", rateLimited(s.Limiter, s.handleMessage))
	mux.HandleFunc("POST /agent/{id}/command", rateLimited(s.Limiter, s.handleCommand))

	mux.HandleFunc("GET /ws/{topic}", s.handleWS)

	return s.corsMiddleware(mux)
}

// Start serves on addr in a goroutine. Shut the returned server down to stop.
func (s *Server) Start(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.CORSOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// corsMiddleware adds CORS headers for allowed origins and answers preflights.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// adminOnly requires the admin bearer token when one is configured.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey != "" {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token != s.AdminKey {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleWelcome(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"message": "Welcome to the NPC city"})
}

type mapEntry struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Profession string          `json:"profession"`
	X          float64         `json:"x"`
	Y          float64         `json:"y"`
	State      city.AgentState `json:"state"`
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	all, err := s.City.Snapshot(r.Context())
	if err != nil {
		s.internalError(w, "map", err)
		return
	}
	out := make([]mapEntry, 0, len(all))
	for _, a := range all {
		out = append(out, mapEntry{ID: a.ID, Name: a.Name, Profession: a.Profession, X: a.X, Y: a.Y, State: a.State})
	}
	writeJSON(w, out)
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := s.City.Locations(r.Context())
	if err != nil {
		s.internalError(w, "locations", err)
		return
	}
	writeJSON(w, locs)
}

type newsEntry struct {
	engine.NewsItem
	Ago string `json:"ago"`
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	limit := s.NewsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	events, err := s.City.News(r.Context(), limit)
	if err != nil {
		s.internalError(w, "news", err)
		return
	}
	now := s.now()
	out := make([]newsEntry, 0, len(events))
	for _, e := range events {
		out = append(out, newsEntry{NewsItem: engine.NewsItemFrom(e), Ago: humanize.RelTime(e.Timestamp, now, "ago", "from now")})
	}
	writeJSON(w, out)
}

type historyEntry struct {
	Role    city.Role `json:"role"`
	Content string    `json:"content"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	turns, err := s.City.History(r.Context(), id)
	if err != nil {
		s.agentError(w, "history", err)
		return
	}
	out := make([]historyEntry, 0, len(turns))
	for _, t := range turns {
		out = append(out, historyEntry{Role: t.Role, Content: t.Content})
	}
	writeJSON(w, out)
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	weather, err := s.City.Weather(r.Context())
	if err != nil {
		s.internalError(w, "weather", err)
		return
	}
	writeJSON(w, map[string]city.Weather{"weather": weather})
}

type textRequest struct {
	Text string `json:"text"`
}

func readText(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req textRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return "", false
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return "", false
	}
	return req.Text, true
}

func (s *Server) handleLaw(w http.ResponseWriter, r *http.Request) {
	text, ok := readText(w, r)
	if !ok {
		return
	}
	e, err := s.City.Announce(r.Context(), text)
	if err != nil {
		s.internalError(w, "law", err)
		return
	}
	slog.Info("law announced", "text", text)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, engine.NewsItemFrom(e))
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	text, ok := readText(w, r)
	if !ok {
		return
	}
	reply, err := s.City.SendMessage(r.Context(), id, text)
	if err != nil {
		s.agentError(w, "message", err)
		return
	}
	writeJSON(w, engine.ChatReply{AgentID: id, From: "npc", Text: reply})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	text, ok := readText(w, r)
	if !ok {
		return
	}
	reply, err := s.City.SendCommand(r.Context(), id, text)
	if err != nil {
		s.agentError(w, "command", err)
		return
	}
	writeJSON(w, engine.CommandReply{AgentID: id, Reply: reply})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return 0, false
	}
	return id, true
}

func (s *Server) agentError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, city.ErrAgentNotFound) {
		writeError(w, http.StatusNotFound, "NPC not found")
		return
	}
	s.internalError(w, op, err)
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	slog.Error("request failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
