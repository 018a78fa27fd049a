package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSON(&buf)

	logger.Info("iteration completed", map[string]any{"iteration": 2})
	logger.Warn("stream tick failed", nil)

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	first := entries[0]
	if first["level"] != "info" {
		t.Errorf("expected level info, got %v", first["level"])
	}
	if first["message"] != "iteration completed" {
		t.Errorf("unexpected message %v", first["message"])
	}
	if _, ok := first["timestamp"]; !ok {
		t.Error("timestamp key missing")
	}
	fields, ok := first["fields"].(map[string]any)
	if !ok || fields["iteration"] != float64(2) {
		t.Errorf("unexpected fields %v", first["fields"])
	}

	if entries[1]["level"] != "warn" {
		t.Errorf("expected level warn, got %v", entries[1]["level"])
	}
	if _, ok := entries[1]["fields"]; ok {
		t.Error("nil fields should not be emitted")
	}
}

func TestLogger_WithAndTimer(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSON(&buf).With(map[string]any{"stream": 1})

	elapsed := logger.Timer("stream.tick").Stop(map[string]any{"score": 0.5})
	if elapsed < 0 {
		t.Errorf("negative duration %v", elapsed)
	}

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["message"] != "stream.tick completed" {
		t.Errorf("unexpected message %v", entry["message"])
	}
	if entry["stream"] != float64(1) {
		t.Errorf("bound field missing: %v", entry)
	}
	fields := entry["fields"].(map[string]any)
	if _, ok := fields["duration_ms"]; !ok {
		t.Error("duration_ms missing from timer entry")
	}
	if fields["score"] != 0.5 {
		t.Errorf("timer fields not merged: %v", fields)
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Output: &buf})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	logger.Info("dropped", nil)
	logger.Error("kept", nil)

	entries := decodeLines(t, &buf)
	if len(entries) != 1 || entries[0]["message"] != "kept" {
		t.Errorf("expected only the error entry, got %v", entries)
	}
}

func TestParseLevel(t *testing.T) {
	for _, level := range []string{"", "debug", "INFO", "warning", "error"} {
		if _, err := ParseLevel(level); err != nil {
			t.Errorf("ParseLevel(%q) unexpected error: %v", level, err)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}
