// Package store persists finished sessions in SQLite so history and
// re-evaluation survive restarts.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stellarlinkco/quizpilot/internal/session"
)

// Record is one persisted session row.
type Record struct {
	ID         string
	URL        string
	Status     session.Status
	Reason     string
	Answer     string
	Correct    bool
	TurnCount  int
	StartedAt  time.Time
	FinishedAt time.Time
}

type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			answer TEXT NOT NULL DEFAULT '',
			correct INTEGER NOT NULL DEFAULT 0,
			turn_count INTEGER NOT NULL DEFAULT 0,
			transcript TEXT NOT NULL DEFAULT '[]',
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_url ON sessions(url, finished_at)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status, finished_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// SaveSession writes a finished session together with the answer extracted
// from its result. Upserts by session id.
func (s *Store) SaveSession(sess *session.Session, res *session.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	transcript, err := json.Marshal(sess.Turns)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}

	answer := ""
	correct := 0
	if res != nil {
		answer = res.Answer
		if res.Correct {
			correct = 1
		}
	}

	_, err = s.db.Exec(`
		INSERT INTO sessions (id, url, status, reason, answer, correct, turn_count, transcript, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			reason = excluded.reason,
			answer = excluded.answer,
			correct = excluded.correct,
			turn_count = excluded.turn_count,
			transcript = excluded.transcript,
			finished_at = excluded.finished_at
	`, sess.ID, sess.URL, string(sess.Status), sess.Reason, answer, correct,
		len(sess.Turns), string(transcript),
		sess.StartedAt.UTC().Format(time.RFC3339), formatTime(sess.EndedAt))
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// History returns the most recent sessions, newest first.
func (s *Store) History(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, url, status, reason, answer, correct, turn_count, started_at, finished_at
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// SolvedURLs returns the distinct URLs of solved sessions, oldest solve
// first, for re-evaluation runs.
func (s *Store) SolvedURLs(limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT url, MIN(finished_at) AS first_solved
		FROM sessions
		WHERE status = ?
		GROUP BY url
		ORDER BY first_solved ASC
		LIMIT ?
	`, string(session.StatusSolved), limit)
	if err != nil {
		return nil, fmt.Errorf("query solved urls: %w", err)
	}
	defer rows.Close()

	urls := make([]string, 0)
	for rows.Next() {
		var url, firstSolved string
		if err := rows.Scan(&url, &firstSolved); err != nil {
			return nil, fmt.Errorf("scan solved url: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate solved urls: %w", err)
	}
	return urls, nil
}

// Transcript loads the stored turns for a session id.
func (s *Store) Transcript(id string) ([]session.Turn, error) {
	row := s.db.QueryRow(`SELECT transcript FROM sessions WHERE id = ?`, id)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session %s not found", id)
		}
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	var turns []session.Turn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	return turns, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	result := make([]Record, 0)
	for rows.Next() {
		var r Record
		var status, startedAt, finishedAt string
		var correct int
		if err := rows.Scan(&r.ID, &r.URL, &status, &r.Reason, &r.Answer, &correct, &r.TurnCount, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		r.Status = session.Status(status)
		r.Correct = correct == 1
		r.StartedAt = parseTime(startedAt)
		r.FinishedAt = parseTime(finishedAt)
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return result, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
