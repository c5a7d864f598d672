// Package persistence provides SQLite-based world state storage.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/npc-city/internal/city"
)

const schemaVersion = "2"

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY
	// between concurrent agent loops and keeps :memory: databases shared.
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		profession TEXT NOT NULL,
		personality TEXT NOT NULL,
		x REAL NOT NULL DEFAULT 0,
		y REAL NOT NULL DEFAULT 0,
		state_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS locations (
		name TEXT PRIMARY KEY,
		x_min REAL NOT NULL,
		x_max REAL NOT NULL,
		y_min REAL NOT NULL,
		y_max REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS weather (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		current TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		ts TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS dialogue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_dialogue_agent ON dialogue(agent_id, id);
	`
	if _, err := db.conn.Exec(schema); err != nil {
		return err
	}

	// Older databases stored agent replies under the "npc" role.
	if _, err := db.conn.Exec("UPDATE dialogue SET role = ? WHERE role = 'npc'", city.RoleAgent); err != nil {
		return fmt.Errorf("migrate dialogue roles: %w", err)
	}
	return db.SaveMeta(context.Background(), "schema_version", schemaVersion)
}

type agentRow struct {
	ID          int64   `db:"id"`
	Name        string  `db:"name"`
	Profession  string  `db:"profession"`
	Personality string  `db:"personality"`
	X           float64 `db:"x"`
	Y           float64 `db:"y"`
	StateJSON   string  `db:"state_json"`
}

func (r agentRow) toAgent() (city.Agent, error) {
	a := city.Agent{
		ID:          r.ID,
		Name:        r.Name,
		Profession:  r.Profession,
		Personality: r.Personality,
		X:           r.X,
		Y:           r.Y,
		State:       city.NewAgentState(),
	}
	if r.StateJSON != "" {
		if err := json.Unmarshal([]byte(r.StateJSON), &a.State); err != nil {
			return a, fmt.Errorf("decode state for agent %d: %w", r.ID, err)
		}
	}
	a.Normalize()
	return a, nil
}

const agentColumns = "id, name, profession, personality, x, y, state_json"

// CountAgents returns the number of stored agents.
func (db *DB) CountAgents(ctx context.Context) (int, error) {
	var n int
	err := db.conn.GetContext(ctx, &n, "SELECT COUNT(*) FROM agents")
	return n, err
}

// InsertAgents adds agents in one transaction, skipping names that already exist.
func (db *DB) InsertAgents(ctx context.Context, agentList []city.Agent) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, a := range agentList {
		a.Normalize()
		stateJSON, err := json.Marshal(a.State)
		if err != nil {
			return fmt.Errorf("encode state for %s: %w", a.Name, err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO agents
			(name, profession, personality, x, y, state_json)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO NOTHING`,
			a.Name, a.Profession, a.Personality, a.X, a.Y, string(stateJSON),
		)
		if err != nil {
			return fmt.Errorf("insert agent %s: %w", a.Name, err)
		}
	}

	return tx.Commit()
}

// ListAgents returns all agents ordered by ID.
func (db *DB) ListAgents(ctx context.Context) ([]city.Agent, error) {
	var rows []agentRow
	if err := db.conn.SelectContext(ctx, &rows, "SELECT "+agentColumns+" FROM agents ORDER BY id"); err != nil {
		return nil, err
	}
	out := make([]city.Agent, 0, len(rows))
	for _, r := range rows {
		a, err := r.toAgent()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// GetAgent returns one agent, or city.ErrAgentNotFound.
func (db *DB) GetAgent(ctx context.Context, id int64) (city.Agent, error) {
	var r agentRow
	err := db.conn.GetContext(ctx, &r, "SELECT "+agentColumns+" FROM agents WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return city.Agent{}, fmt.Errorf("agent %d: %w", id, city.ErrAgentNotFound)
	}
	if err != nil {
		return city.Agent{}, err
	}
	return r.toAgent()
}

// EnsureLocations inserts the given locations if the table is empty.
func (db *DB) EnsureLocations(ctx context.Context, locs []city.Location) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var n int
	if err := tx.GetContext(ctx, &n, "SELECT COUNT(*) FROM locations"); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	for _, l := range locs {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO locations (name, x_min, x_max, y_min, y_max)
			VALUES (:name, :x_min, :x_max, :y_min, :y_max)`, l); err != nil {
			return fmt.Errorf("insert location %s: %w", l.Name, err)
		}
	}
	return tx.Commit()
}

// ListLocations returns every location ordered by name.
func (db *DB) ListLocations(ctx context.Context) ([]city.Location, error) {
	var locs []city.Location
	err := db.conn.SelectContext(ctx, &locs, "SELECT name, x_min, x_max, y_min, y_max FROM locations ORDER BY rowid")
	return locs, err
}

// GetLocation returns a location by name, or city.ErrLocationNotFound.
func (db *DB) GetLocation(ctx context.Context, name string) (city.Location, error) {
	var l city.Location
	err := db.conn.GetContext(ctx, &l, "SELECT name, x_min, x_max, y_min, y_max FROM locations WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return l, fmt.Errorf("location %q: %w", name, city.ErrLocationNotFound)
	}
	return l, err
}

// EnsureWeather creates the weather singleton if absent.
func (db *DB) EnsureWeather(ctx context.Context, initial city.Weather) error {
	_, err := db.conn.ExecContext(ctx, "INSERT INTO weather (id, current) VALUES (1, ?) ON CONFLICT(id) DO NOTHING", initial)
	return err
}

// Weather returns the current world weather.
func (db *DB) Weather(ctx context.Context) (city.Weather, error) {
	var w string
	err := db.conn.GetContext(ctx, &w, "SELECT current FROM weather WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return city.Sunny, nil
	}
	if err != nil {
		return "", err
	}
	return city.ParseWeather(w), nil
}

// SetWeather replaces the weather and appends the announcing events in one transaction.
func (db *DB) SetWeather(ctx context.Context, w city.Weather, events ...city.Event) ([]city.Event, error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "INSERT INTO weather (id, current) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET current = excluded.current", w); err != nil {
		return nil, fmt.Errorf("set weather: %w", err)
	}
	stored, err := insertEvents(ctx, tx, events)
	if err != nil {
		return nil, err
	}
	return stored, tx.Commit()
}

// Apply commits a change atomically: the agent row, its events and its dialogue
// turns either all land or none do. Returned events carry their assigned IDs.
func (db *DB) Apply(ctx context.Context, c city.Change) ([]city.Event, error) {
	if c.Empty() {
		return nil, nil
	}

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if c.Agent != nil {
		a := c.Agent.Clone()
		a.Normalize()
		stateJSON, err := json.Marshal(a.State)
		if err != nil {
			return nil, fmt.Errorf("encode state for agent %d: %w", a.ID, err)
		}
		res, err := tx.ExecContext(ctx, "UPDATE agents SET x = ?, y = ?, state_json = ? WHERE id = ?",
			a.X, a.Y, string(stateJSON), a.ID)
		if err != nil {
			return nil, fmt.Errorf("update agent %d: %w", a.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("update agent %d: %w", a.ID, city.ErrAgentNotFound)
		}
	}

	for _, d := range c.Dialogue {
		if _, err := tx.ExecContext(ctx, "INSERT INTO dialogue (agent_id, role, content, created_at) VALUES (?, ?, ?, ?)",
			d.AgentID, d.Role, d.Content, formatTime(d.CreatedAt)); err != nil {
			return nil, fmt.Errorf("insert dialogue for agent %d: %w", d.AgentID, err)
		}
	}

	stored, err := insertEvents(ctx, tx, c.Events)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return stored, nil
}

func insertEvents(ctx context.Context, tx *sqlx.Tx, events []city.Event) ([]city.Event, error) {
	stored := make([]city.Event, 0, len(events))
	for _, e := range events {
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now().UTC()
		}
		res, err := tx.ExecContext(ctx, "INSERT INTO events (title, content, ts) VALUES (?, ?, ?)",
			e.Title, e.Content, formatTime(e.Timestamp))
		if err != nil {
			return nil, fmt.Errorf("insert event: %w", err)
		}
		e.ID, _ = res.LastInsertId()
		stored = append(stored, e)
	}
	return stored, nil
}

type eventRow struct {
	ID      int64  `db:"id"`
	Title   string `db:"title"`
	Content string `db:"content"`
	TS      string `db:"ts"`
}

// RecentEvents returns the most recent N events, newest first.
func (db *DB) RecentEvents(ctx context.Context, limit int) ([]city.Event, error) {
	var rows []eventRow
	err := db.conn.SelectContext(ctx, &rows,
		"SELECT id, title, content, ts FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	out := make([]city.Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, city.Event{ID: r.ID, Title: r.Title, Content: r.Content, Timestamp: parseTime(r.TS)})
	}
	return out, nil
}

type dialogueRow struct {
	ID        int64  `db:"id"`
	AgentID   int64  `db:"agent_id"`
	Role      string `db:"role"`
	Content   string `db:"content"`
	CreatedAt string `db:"created_at"`
}

// DialogueHistory returns an agent's conversation in chronological order.
// A positive limit keeps only the most recent turns.
func (db *DB) DialogueHistory(ctx context.Context, agentID int64, limit int) ([]city.DialogueTurn, error) {
	var rows []dialogueRow
	var err error
	if limit > 0 {
		err = db.conn.SelectContext(ctx, &rows, `SELECT * FROM (
			SELECT id, agent_id, role, content, created_at FROM dialogue
			WHERE agent_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id`, agentID, limit)
	} else {
		err = db.conn.SelectContext(ctx, &rows,
			"SELECT id, agent_id, role, content, created_at FROM dialogue WHERE agent_id = ? ORDER BY id", agentID)
	}
	if err != nil {
		return nil, err
	}
	out := make([]city.DialogueTurn, 0, len(rows))
	for _, r := range rows {
		out = append(out, city.DialogueTurn{
			ID:        r.ID,
			AgentID:   r.AgentID,
			Role:      city.Role(r.Role),
			Content:   r.Content,
			CreatedAt: parseTime(r.CreatedAt),
		})
	}
	return out, nil
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.GetContext(ctx, &value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		slog.Debug("unparseable timestamp", "value", s, "error", err)
		return time.Time{}
	}
	return t
}
