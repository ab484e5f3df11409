// Package persistence provides SQLite-based storage for simulation records:
// state summaries, decision frames and the event log. Records are an audit
// trail; a restarted process never resumes a simulation from them.
package persistence

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/talgya/mind-lab/internal/engine"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DB wraps a SQLite connection for simulation records.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	dsn := path
	if path != MemoryPath {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer; also keeps an in-memory database on a single connection.
	conn.SetMaxOpenConns(1)

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
	CREATE TABLE IF NOT EXISTS simulations (
		id TEXT PRIMARY KEY,
		agent_name TEXT NOT NULL,
		status TEXT NOT NULL,
		turn INTEGER NOT NULL,
		location TEXT NOT NULL,
		stress INTEGER NOT NULL,
		is_safe INTEGER NOT NULL,
		sim_time TEXT NOT NULL,
		snapshot_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS frames (
		simulation_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		sim_time TEXT NOT NULL,
		action TEXT NOT NULL,
		reasoning TEXT NOT NULL,
		agent_json TEXT NOT NULL,
		PRIMARY KEY (simulation_id, turn)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		simulation_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		emitted_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_simulation ON events(simulation_id);
	CREATE INDEX IF NOT EXISTS idx_simulations_status ON simulations(status);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SimulationRecord is the stored summary of a simulation.
type SimulationRecord struct {
	ID        string `db:"id" json:"simulation_id"`
	AgentName string `db:"agent_name" json:"agent_name"`
	Status    string `db:"status" json:"status"`
	Turn      int    `db:"turn" json:"turn"`
	Location  string `db:"location" json:"current_location"`
	Stress    int    `db:"stress" json:"stress"`
	IsSafe    bool   `db:"is_safe" json:"is_safe"`
	SimTime   string `db:"sim_time" json:"current_time"`
	CreatedAt string `db:"created_at" json:"created_at"`
	UpdatedAt string `db:"updated_at" json:"updated_at"`
}

// FrameRecord is a stored decision frame.
type FrameRecord struct {
	SimulationID string         `db:"simulation_id" json:"simulation_id"`
	Turn         int            `db:"turn" json:"turn"`
	SimTime      string         `db:"sim_time" json:"timestamp"`
	Action       string         `db:"action" json:"action"`
	Reasoning    string         `db:"reasoning" json:"reasoning"`
	Agent        types.JSONText `db:"agent_json" json:"agent_state"`
}

// EventRecord is a stored event.
type EventRecord struct {
	ID           int64          `db:"id" json:"id"`
	SimulationID string         `db:"simulation_id" json:"simulation_id"`
	Kind         string         `db:"kind" json:"type"`
	Payload      types.JSONText `db:"payload" json:"data"`
	EmittedAt    string         `db:"emitted_at" json:"timestamp"`
}

// SaveSnapshot upserts the summary row for a simulation.
func (db *DB) SaveSnapshot(snap engine.Snapshot, createdAt time.Time) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	safe := 0
	if snap.IsSafe {
		safe = 1
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = db.conn.Exec(`INSERT INTO simulations
		(id, agent_name, status, turn, location, stress, is_safe, sim_time, snapshot_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			turn = excluded.turn,
			location = excluded.location,
			stress = excluded.stress,
			is_safe = excluded.is_safe,
			sim_time = excluded.sim_time,
			snapshot_json = excluded.snapshot_json,
			updated_at = excluded.updated_at`,
		snap.SimulationID, snap.Agent.Name, string(snap.Status), snap.Turn, snap.Location.Name,
		snap.Psychology.Stress, safe, snap.CurrentTime, string(data),
		createdAt.UTC().Format(time.RFC3339Nano), now,
	)
	return err
}

// SaveFrames writes frames for a simulation, replacing any with the same turn.
func (db *DB) SaveFrames(simulationID string, frames []engine.Frame) error {
	if len(frames) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT OR REPLACE INTO frames
		(simulation_id, turn, sim_time, action, reasoning, agent_json)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range frames {
		agentJSON, err := json.Marshal(f.Agent)
		if err != nil {
			return fmt.Errorf("marshal frame %d: %w", f.Turn, err)
		}
		if _, err := stmt.Exec(simulationID, f.Turn, f.Timestamp, f.Action, f.Reasoning, string(agentJSON)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveEvents appends events to the log.
func (db *DB) SaveEvents(events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", e.Kind(), err)
		}
		_, err = tx.Exec(
			"INSERT INTO events (simulation_id, kind, payload, emitted_at) VALUES (?, ?, ?, ?)",
			e.SimulationID, string(e.Kind()), string(payload), e.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}

// SaveSimulation writes the summary and every frame of sim.
func (db *DB) SaveSimulation(sim *engine.Simulation) error {
	snap := sim.State()
	logrus.WithFields(logrus.Fields{
		"simulation_id": snap.SimulationID,
		"turn":          snap.Turn,
		"status":        snap.Status,
	}).Debug("saving simulation")

	if err := db.SaveSnapshot(snap, sim.CreatedAt()); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := db.SaveFrames(snap.SimulationID, sim.History()); err != nil {
		return fmt.Errorf("save frames: %w", err)
	}
	return nil
}

// ListSimulations returns stored summaries, newest first, optionally
// filtered by status.
func (db *DB) ListSimulations(status string) ([]SimulationRecord, error) {
	query := `SELECT id, agent_name, status, turn, location, stress, is_safe, sim_time, created_at, updated_at
		FROM simulations`
	var args []any
	if status = strings.TrimSpace(status); status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	records := []SimulationRecord{}
	err := db.conn.Select(&records, query, args...)
	return records, err
}

// Frames returns a simulation's frames in turn order.
func (db *DB) Frames(simulationID string) ([]FrameRecord, error) {
	frames := []FrameRecord{}
	err := db.conn.Select(&frames,
		`SELECT simulation_id, turn, sim_time, action, reasoning, agent_json
		FROM frames WHERE simulation_id = ? ORDER BY turn`,
		simulationID,
	)
	return frames, err
}

// RecentEvents returns the most recent N events of a simulation in
// emission order.
func (db *DB) RecentEvents(simulationID string, limit int) ([]EventRecord, error) {
	events := []EventRecord{}
	err := db.conn.Select(&events,
		`SELECT id, simulation_id, kind, payload, emitted_at FROM (
			SELECT * FROM events WHERE simulation_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id`,
		simulationID, limit,
	)
	return events, err
}
