package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	if err := os.WriteFile(path, []byte(validBatchYAML), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	batch, err := LoadBatch(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(batch.Scenarios) != 3 {
		t.Errorf("got %d scenarios, want 3", len(batch.Scenarios))
	}
}

func TestLoadBatchMissingFile(t *testing.T) {
	_, err := LoadBatch(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("expected read error, got %v", err)
	}
}

func TestLoadBatchInvalidContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	if err := os.WriteFile(path, []byte("scenarios: []"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	_, err := LoadBatch(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse batch file") {
		t.Errorf("expected parse error, got %v", err)
	}
}
