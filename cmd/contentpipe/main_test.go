package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/viralshorts/automation/internal/persistence"
)

func writeConfig(t *testing.T, dir, mirrorDriver string) string {
	t.Helper()
	cfg := fmt.Sprintf(`
scheduler:
  max_concurrent: 2
  idle_interval: 50ms
mirror:
  driver: %s
  sqlite_path: %s
automation:
  reports_dir: %s
logging:
  level: error
`, mirrorDriver, filepath.Join(dir, "tasks.db"), filepath.Join(dir, "reports"))

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestRunOnce drives a full simulated pipeline through the binary's wiring:
// config, SQLite mirror, scheduler, automation report.
func TestRunOnce(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "sqlite")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var stdout, stderr bytes.Buffer
	args := []string{"-config", path, "-once", "-sim-latency", "0", "-sim-failure-rate", "0", "-sim-seed", "42"}
	if err := run(ctx, args, &stdout, &stderr); err != nil {
		t.Fatalf("run() error = %v (stderr: %s)", err, stderr.String())
	}

	out := stdout.String()
	if !strings.Contains(out, "Automation report") || !strings.Contains(out, "4 completed") {
		t.Errorf("unexpected report output:\n%s", out)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "reports"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one report file, got %v (%v)", entries, err)
	}

	store, err := persistence.NewSQLiteStore(ctx, filepath.Join(dir, "tasks.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	counts, err := store.CountByStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts["completed"] != 4 {
		t.Errorf("expected 4 completed tasks mirrored, got %v", counts)
	}
	if _, err := store.LatestReport(ctx); err != nil {
		t.Errorf("expected the report in SQLite: %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "none")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"-config", path, "-sim-latency", "0"}, &bytes.Buffer{}, &bytes.Buffer{})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v, want nil on cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"defaults", nil, false},
		{"tui", []string{"-tui"}, false},
		{"tui and once", []string{"-tui", "-once"}, true},
		{"unknown flag", []string{"-verbose"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args, &bytes.Buffer{})
			if (err != nil) != tt.wantErr {
				t.Errorf("parseFlags(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
		})
	}
}

func TestBadConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"mirror": {"driver": "mongo"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	err := run(context.Background(), []string{"-config", path}, &bytes.Buffer{}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "mirror.driver") {
		t.Errorf("expected config validation error, got %v", err)
	}
}
