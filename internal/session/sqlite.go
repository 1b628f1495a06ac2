package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists sessions to a local SQLite database so that
// conversational state survives process restarts. Session state is stored
// as a JSON blob; turn serialization still happens in process, so a single
// engine instance must own the database file.
type SQLiteStore struct {
	db    *sql.DB
	turns *turnLocks
}

const sessionSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	state       BLOB NOT NULL,
	created_at  TIMESTAMP NOT NULL,
	last_active TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active);
`

// NewSQLiteStore opens (or creates) the session database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create session db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	if _, err := db.Exec(sessionSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session schema: %w", err)
	}

	return &SQLiteStore{
		db:    db,
		turns: newTurnLocks(),
	}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetOrCreate returns the session for id, creating it if absent.
func (s *SQLiteStore) GetOrCreate(id string) (*Session, bool) {
	if sess, ok := s.Get(id); ok {
		sess.Touch()
		return sess, false
	}
	sess := New(id)
	if err := s.Save(sess); err != nil {
		// The caller still gets a usable in-memory session; the next
		// successful Save persists it.
		return sess, true
	}
	return sess, true
}

// Get loads the session for id if it exists.
func (s *SQLiteStore) Get(id string) (*Session, bool) {
	var blob []byte
	err := s.db.QueryRow(`SELECT state FROM sessions WHERE id = ?`, id).Scan(&blob)
	if err != nil {
		return nil, false
	}
	var sess Session
	if err := json.Unmarshal(blob, &sess); err != nil {
		return nil, false
	}
	if sess.GeneratedCode == nil {
		sess.GeneratedCode = make(map[int]*GeneratedCode)
	}
	if sess.ExecutionResults == nil {
		sess.ExecutionResults = make(map[int]*ExecutionResult)
	}
	return &sess, true
}

// Save upserts the session state.
func (s *SQLiteStore) Save(sess *Session) error {
	blob, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sess.ID, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (id, state, created_at, last_active) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state, last_active = excluded.last_active`,
		sess.ID, blob, sess.CreatedAt, sess.LastActive)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", sess.ID, err)
	}
	return nil
}

// Clear removes the session for id, reporting whether it existed.
func (s *SQLiteStore) Clear(id string) bool {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false
	}
	n, _ := res.RowsAffected()
	return n > 0
}

// List returns summaries of all sessions, most recently active first.
func (s *SQLiteStore) List() []Summary {
	rows, err := s.db.Query(`SELECT state FROM sessions`)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			continue
		}
		var sess Session
		if err := json.Unmarshal(blob, &sess); err != nil {
			continue
		}
		summaries = append(summaries, sess.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastActive.After(summaries[j].LastActive)
	})
	return summaries
}

// Acquire blocks until the caller owns the turn lock for id.
func (s *SQLiteStore) Acquire(id string) { s.turns.acquire(id) }

// Release gives up the turn lock for id.
func (s *SQLiteStore) Release(id string) { s.turns.release(id) }
