// Package store persists sessions as one JSON-serialized array under a fixed
// key. The whole array is rewritten on every mutation; there is no
// optimistic-concurrency check and a concurrent writer sharing the same
// database is unsupported (last writer wins).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"screenpilot/internal/domain"
)

const sessionsKey = "agent.sessions"

// DefaultMaxSessions caps retention; the oldest session is evicted first.
const DefaultMaxSessions = 10

// Store is a best-effort durability sink: it logs write failures through the
// diagnostic logger and never propagates them, so a broken persistence layer
// degrades the agent to in-memory-only operation.
type Store struct {
	DB          *sql.DB
	MaxSessions int
	Logger      *log.Logger
	Now         func() time.Time
}

func (s Store) max() int {
	if s.MaxSessions > 0 {
		return s.MaxSessions
	}
	return DefaultMaxSessions
}

func (s Store) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

func (s Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Load returns all persisted sessions, oldest first. Absent or corrupt
// storage yields an empty result; parse failures are swallowed, not raised.
func (s Store) Load(ctx context.Context) []domain.Session {
	var value string
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key=?`, sessionsKey).Scan(&value)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		s.logger().Printf("store: load sessions: %v", err)
		return nil
	}
	var sessions []domain.Session
	if err := json.Unmarshal([]byte(value), &sessions); err != nil {
		s.logger().Printf("store: discarding corrupt session data: %v", err)
		return nil
	}
	return sessions
}

// Save overwrites the persisted array, trimming to the retention cap. Write
// failures are logged and swallowed; the next successful save resyncs.
func (s Store) Save(ctx context.Context, sessions []domain.Session) {
	if n := s.max(); len(sessions) > n {
		sessions = sessions[len(sessions)-n:]
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		s.logger().Printf("store: marshal sessions: %v", err)
		return
	}
	ts := s.now().UTC().Format(time.RFC3339)
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO kv(key,value,updated_at) VALUES (?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		sessionsKey, string(data), ts)
	if err != nil {
		s.logger().Printf("store: save sessions: %v", err)
	}
}

// Clear wipes every persisted session.
func (s Store) Clear(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM kv WHERE key=?`, sessionsKey)
	return err
}
