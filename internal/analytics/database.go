// Package analytics journals gameplay events of the live session into SQLite.
package analytics

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL keeps the batch writer from blocking readers of /metrics
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		session_id TEXT NOT NULL,
		player_id TEXT NOT NULL DEFAULT '',
		username TEXT NOT NULL DEFAULT '',
		tick INTEGER NOT NULL DEFAULT 0,
		score INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
	CREATE INDEX IF NOT EXISTS idx_events_player ON events(player_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// EventCounts returns how many events of each type were recorded for a session
func (db *DB) EventCounts(sessionID string) (map[string]int, error) {
	rows, err := db.conn.Query(`
		SELECT event_type, COUNT(*) FROM events
		WHERE session_id = ?
		GROUP BY event_type`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var evtType string
		var count int
		if err := rows.Scan(&evtType, &count); err != nil {
			return nil, err
		}
		result[evtType] = count
	}
	return result, rows.Err()
}

// TopScores returns the best final scores seen at death or leave, highest first
func (db *DB) TopScores(sessionID string, limit int) ([]ScoreEntry, error) {
	rows, err := db.conn.Query(`
		SELECT username, MAX(score) AS best FROM events
		WHERE session_id = ? AND event_type IN (?, ?) AND username != ''
		GROUP BY username
		ORDER BY best DESC LIMIT ?`,
		sessionID, EvtDeath, EvtLeave, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ScoreEntry
	for rows.Next() {
		var e ScoreEntry
		if err := rows.Scan(&e.Username, &e.Score); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// ScoreEntry is one row of TopScores
type ScoreEntry struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
}
