package store

import (
	"database/sql"

	_ "github.com/glebarez/go-sqlite"
)

// StoredTurn is one persisted conversation turn. Timestamp carries the
// column text as sqlite stores it.
type StoredTurn struct {
	Role      string
	Content   string
	Timestamp string
}

// TranscriptStore persists committed conversation turns per session. It is
// write-through from the agent loop; in-process memory stays the engine's
// source of truth and the transcript is never replayed into it.
type TranscriptStore struct {
	db *sql.DB
}

func NewTranscriptStore(dbPath string) (*TranscriptStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	schema := `CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &TranscriptStore{db: db}, nil
}

func (s *TranscriptStore) AddTurn(sessionID, role, content string) error {
	_, err := s.db.Exec(
		`INSERT INTO turns (session_id, role, content) VALUES (?, ?, ?)`,
		sessionID, role, content,
	)
	return err
}

// History returns the last `limit` turns of a session in chronological order.
func (s *TranscriptStore) History(sessionID string, limit int) ([]StoredTurn, error) {
	rows, err := s.db.Query(
		`SELECT role, content, timestamp FROM turns
		 WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []StoredTurn
	for rows.Next() {
		var t StoredTurn
		if err := rows.Scan(&t.Role, &t.Content, &t.Timestamp); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *TranscriptStore) Close() error {
	return s.db.Close()
}
