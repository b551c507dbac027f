package store

import (
	"context"
	"fmt"
	"io"
	"log"
	"testing"

	"screenpilot/internal/db"
	"screenpilot/internal/domain"
	"screenpilot/internal/migrate"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return Store{DB: conn, Logger: log.New(io.Discard, "", 0)}
}

func session(id string) domain.Session {
	return domain.Session{
		ID:        id,
		StartedAt: "2026-01-01T00:00:00Z",
		Active:    false,
		Plans:     []domain.Plan{},
		AuditLog:  []domain.AuditLogEntry{},
	}
}

func TestLoadEmptyStore(t *testing.T) {
	st := newTestStore(t)
	if got := st.Load(context.Background()); len(got) != 0 {
		t.Fatalf("expected no sessions, got %d", len(got))
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	st.Save(ctx, []domain.Session{session("a"), session("b")})
	got := st.Load(ctx)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("unexpected sessions: %+v", got)
	}
}

func TestRetentionEvictsOldest(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	var sessions []domain.Session
	for i := 0; i < 11; i++ {
		sessions = append(sessions, session(fmt.Sprintf("s-%02d", i)))
	}
	st.Save(ctx, sessions)
	got := st.Load(ctx)
	if len(got) != DefaultMaxSessions {
		t.Fatalf("expected %d sessions, got %d", DefaultMaxSessions, len(got))
	}
	if got[0].ID != "s-01" || got[len(got)-1].ID != "s-10" {
		t.Fatalf("expected oldest evicted, got first=%s last=%s", got[0].ID, got[len(got)-1].ID)
	}
}

func TestCorruptValueYieldsEmpty(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	if _, err := st.DB.ExecContext(ctx,
		`INSERT INTO kv(key,value,updated_at) VALUES (?,?,?)`,
		"agent.sessions", "{not json", "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("seed corrupt value: %v", err)
	}
	if got := st.Load(ctx); len(got) != 0 {
		t.Fatalf("corrupt value must yield empty, got %d", len(got))
	}
}

func TestClear(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	st.Save(ctx, []domain.Session{session("a")})
	if err := st.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := st.Load(ctx); len(got) != 0 {
		t.Fatalf("expected empty after clear, got %d", len(got))
	}
}

func TestSaveFailureIsSwallowed(t *testing.T) {
	st := newTestStore(t)
	st.DB.Close()
	// must not panic or return an error; the store only logs
	st.Save(context.Background(), []domain.Session{session("a")})
	if got := st.Load(context.Background()); len(got) != 0 {
		t.Fatalf("closed db should read as empty, got %d", len(got))
	}
}
