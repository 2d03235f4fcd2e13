// Package sqlite records the observed event stream of agent sessions for
// later inspection. The session runtime itself keeps everything in memory;
// recording is an optional sink the CLI attaches.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/vibewire/vibewire/eventbus"
)

// Store persists session transcripts in SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent read/write performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transcript_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id     TEXT NOT NULL,
			agent_id   TEXT NOT NULL,
			name       TEXT NOT NULL,
			data       TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_transcript_agent_id
			ON transcript_events(agent_id);

		CREATE TABLE IF NOT EXISTS snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id   TEXT NOT NULL,
			state      TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_agent_id
			ON snapshots(agent_id);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Event is one recorded bus event.
type Event struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	AgentID   string    `json:"agent_id"`
	Name      string    `json:"name"`
	Data      string    `json:"data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AddEvent inserts an event and fills in its ID.
func (s *Store) AddEvent(e *Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	result, err := s.db.Exec(
		`INSERT INTO transcript_events (run_id, agent_id, name, data, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.RunID, e.AgentID, e.Name, e.Data, e.CreatedAt,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// ListEvents returns events for an agent, optionally after a given event
// ID, oldest first.
func (s *Store) ListEvents(agentID string, afterID int64) ([]*Event, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, agent_id, name, data, created_at
		 FROM transcript_events
		 WHERE agent_id = ? AND id > ?
		 ORDER BY id ASC`,
		agentID, afterID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(&e.ID, &e.RunID, &e.AgentID, &e.Name, &e.Data, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// SaveSnapshot stores a serialized state snapshot for an agent.
func (s *Store) SaveSnapshot(agentID string, state any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO snapshots (agent_id, state, created_at) VALUES (?, ?, ?)`,
		agentID, string(data), time.Now().UTC(),
	)
	return err
}

// LatestSnapshot returns the most recent serialized snapshot for an agent,
// or sql.ErrNoRows when none exists.
func (s *Store) LatestSnapshot(agentID string) (string, time.Time, error) {
	var data string
	var createdAt time.Time
	err := s.db.QueryRow(
		`SELECT state, created_at FROM snapshots
		 WHERE agent_id = ? ORDER BY id DESC LIMIT 1`,
		agentID,
	).Scan(&data, &createdAt)
	return data, createdAt, err
}

// Record subscribes to every event on bus and persists it under a fresh
// run ID. Returns the run ID and a stop function releasing the
// subscription.
func (s *Store) Record(agentID string, bus *eventbus.Bus) (string, func()) {
	runID := uuid.New().String()[:8]
	unsub := bus.OnAny(func(event string, payload any) {
		e := &Event{RunID: runID, AgentID: agentID, Name: event, Data: encodePayload(payload)}
		if err := s.AddEvent(e); err != nil {
			// Recording is best-effort; the session must not notice.
			return
		}
	})
	return runID, unsub
}

func encodePayload(payload any) string {
	switch p := payload.(type) {
	case nil:
		return ""
	case error:
		return p.Error()
	case string:
		return p
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(data)
}
