// Package session holds the server-issued session token in client-durable
// storage. Exactly one session is active per client context; the token is
// absent until the first response carries one, reused on every subsequent
// request, and cleared explicitly to force a fresh remote session.
package session

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Store is the durable storage contract for the session token.
type Store interface {
	// Token returns the current session token, "" if none.
	Token() string
	// SetToken persists a server-issued token, replacing any previous one.
	SetToken(token string) error
	// Clear drops the token.
	Clear() error
	Close() error
}

// MemStore is an in-process Store for tests and embedders that manage their
// own persistence.
type MemStore struct {
	mu    sync.Mutex
	token string
}

func NewMemStore() *MemStore { return &MemStore{} }

func (m *MemStore) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *MemStore) SetToken(token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *MemStore) Clear() error { return m.SetToken("") }
func (m *MemStore) Close() error { return nil }

// SQLiteStore persists the token in a single-row kv table. The database
// holds exactly one key.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the session database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("session: mkdir: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(10000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("session: open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	const schema = `CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("session: init schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

const tokenKey = "session_token"

func (s *SQLiteStore) Token() string {
	var v string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, tokenKey).Scan(&v)
	if err != nil {
		return ""
	}
	return v
}

func (s *SQLiteStore) SetToken(token string) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		tokenKey, token)
	if err != nil {
		return fmt.Errorf("session: set token: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, tokenKey); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
