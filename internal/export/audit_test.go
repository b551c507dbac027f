package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"screenpilot/internal/domain"
)

func TestFilenameIsDated(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	if got := Filename(now); got != "audit-log-2026-03-14.json" {
		t.Fatalf("unexpected filename: %s", got)
	}
}

func TestWriteJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	entries := []domain.AuditLogEntry{
		{ID: "e1", TS: "2026-03-14T00:00:00Z", Kind: domain.EntrySessionStart, Description: "Session started"},
		{ID: "e2", TS: "2026-03-14T00:00:01Z", Kind: domain.EntryPlanCreated, Description: "Plan created for goal: demo",
			Details: map[string]any{"steps": float64(2)}},
	}
	path, err := WriteJSON(entries, dir, now)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if path != filepath.Join(dir, "audit-log-2026-03-14.json") {
		t.Fatalf("unexpected path: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var got []domain.AuditLogEntry
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 2 || got[0].ID != "e1" || got[1].Kind != domain.EntryPlanCreated {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestWriteJSONNilEntries(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteJSON(nil, dir, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "[]" {
		t.Fatalf("nil entries must serialize as an empty array, got %s", data)
	}
}
