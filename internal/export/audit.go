// Package export writes audit logs as reviewable JSON documents.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"screenpilot/internal/domain"
)

// Filename returns the dated name for an exported audit log.
func Filename(now time.Time) string {
	return fmt.Sprintf("audit-log-%s.json", now.UTC().Format("2006-01-02"))
}

// RenderJSON produces the canonical export document: a UTF-8 JSON array with
// two-space indentation. The format is stable so previously exported files
// stay comparable.
func RenderJSON(entries []domain.AuditLogEntry) ([]byte, error) {
	if entries == nil {
		entries = []domain.AuditLogEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render audit log: %w", err)
	}
	return data, nil
}

// WriteJSON renders the entries and writes them under dir, returning the
// output path.
func WriteJSON(entries []domain.AuditLogEntry, dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	body, err := RenderJSON(entries)
	if err != nil {
		return "", err
	}
	outputPath := filepath.Join(dir, Filename(now))
	if err := os.WriteFile(outputPath, body, 0o644); err != nil {
		return "", fmt.Errorf("write audit log file: %w", err)
	}
	return outputPath, nil
}
