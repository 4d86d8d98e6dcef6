package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/viralshorts/automation/internal/scheduler"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		global      string // file name and content, empty for none
		globalBody  string
		project     string
		projectBody string
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "No config files - returns defaults",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Scheduler.MaxConcurrent != 3 {
					t.Errorf("MaxConcurrent = %d, want 3", cfg.Scheduler.MaxConcurrent)
				}
				if cfg.Scheduler.RetryBase.Duration != 30*time.Second {
					t.Errorf("RetryBase = %s, want 30s", cfg.Scheduler.RetryBase)
				}
				if cfg.Resources["cpu_cores"] != 4 {
					t.Errorf("cpu_cores = %v, want 4", cfg.Resources["cpu_cores"])
				}
			},
		},
		{
			name:       "Global only - overrides one field",
			global:     "config.json",
			globalBody: `{"scheduler": {"max_concurrent": 5}}`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Scheduler.MaxConcurrent != 5 {
					t.Errorf("MaxConcurrent = %d, want 5", cfg.Scheduler.MaxConcurrent)
				}
				if cfg.Scheduler.DefaultMaxRetries != 3 {
					t.Errorf("untouched DefaultMaxRetries = %d, want 3", cfg.Scheduler.DefaultMaxRetries)
				}
			},
		},
		{
			name:        "Both with merge - project wins, resources merge per key",
			global:      "config.json",
			globalBody:  `{"scheduler": {"max_concurrent": 5}, "resources": {"gpu": 1}}`,
			project:     "config.json",
			projectBody: `{"scheduler": {"max_concurrent": 2}, "resources": {"cpu_cores": 16}}`,
			check: func(t *testing.T, cfg *Config) {
				if cfg.Scheduler.MaxConcurrent != 2 {
					t.Errorf("MaxConcurrent = %d, want 2", cfg.Scheduler.MaxConcurrent)
				}
				if cfg.Resources["gpu"] != 1 || cfg.Resources["cpu_cores"] != 16 || cfg.Resources["memory_gb"] != 8 {
					t.Errorf("unexpected merged resources %v", cfg.Resources)
				}
			},
		},
		{
			name:        "YAML project file with durations",
			project:     "config.yaml",
			projectBody: "scheduler:\n  idle_interval: 2m\n  retry_base: 15\nautomation:\n  daily_pipeline: \"30 6 * * *\"\nmirror:\n  driver: sqlite\n",
			check: func(t *testing.T, cfg *Config) {
				if cfg.Scheduler.IdleInterval.Duration != 2*time.Minute {
					t.Errorf("IdleInterval = %s, want 2m", cfg.Scheduler.IdleInterval)
				}
				if cfg.Scheduler.RetryBase.Duration != 15*time.Second {
					t.Errorf("numeric RetryBase = %s, want 15s", cfg.Scheduler.RetryBase)
				}
				if cfg.Automation.DailyPipeline != "30 6 * * *" {
					t.Errorf("DailyPipeline = %q", cfg.Automation.DailyPipeline)
				}
				if cfg.Mirror.Driver != MirrorSQLite {
					t.Errorf("Driver = %q, want sqlite", cfg.Mirror.Driver)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var globalPath, projectPath string
			if tt.global != "" {
				globalPath = writeFile(t, t.TempDir(), tt.global, tt.globalBody)
			}
			if tt.project != "" {
				projectPath = writeFile(t, t.TempDir(), tt.project, tt.projectBody)
			}

			cfg, err := Load(globalPath, projectPath)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.json", `{"scheduler": {`)

	if _, err := Load("", path); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.json", `{"scheduler": {"max_concurent": 4}}`)

	_, err := Load("", path)
	if err == nil || !strings.Contains(err.Error(), "max_concurent") {
		t.Errorf("expected unknown field error, got %v", err)
	}
}

func TestLoad_MissingFilesNotError(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "nope.json"), filepath.Join(dir, "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", cfg.Pipeline.BatchSize)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"zero concurrency", `{"scheduler": {"max_concurrent": 0}}`, "max_concurrent"},
		{"bad cron", `{"automation": {"weekly_report": "every sunday"}}`, "weekly_report"},
		{"bad driver", `{"mirror": {"driver": "mongo"}}`, "mirror.driver"},
		{"bad level", `{"logging": {"level": "loud"}}`, "logging.level"},
		{"bad duration", `{"scheduler": {"idle_interval": "soon"}}`, "soon"},
		{"retry max below base", `{"scheduler": {"retry_base": "5m", "retry_max": "1m"}}`, "retry_max"},
		{"negative resource", `{"resources": {"cpu_cores": -1}}`, "resources.cpu_cores"},
		{"bad timezone", `{"automation": {"timezone": "Mars/Olympus"}}`, "timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.json", tt.body)
			_, err := Load("", path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSchedulerSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scheduler.AttemptTimeout = D(time.Minute)
	cfg.Scheduler.BreakerTripFailures = -1

	sc := cfg.SchedulerSettings()
	if sc.MaxConcurrent != 3 || sc.IdleInterval != 10*time.Second {
		t.Errorf("unexpected loop settings %+v", sc)
	}
	if sc.Retry.Base != 30*time.Second || sc.Retry.Max != 300*time.Second {
		t.Errorf("unexpected retry policy %+v", sc.Retry)
	}
	if sc.Breaker.TripFailures != -1 || sc.AttemptTimeout != time.Minute {
		t.Errorf("unexpected breaker/timeout %+v", sc)
	}
	if sc.Capacities[scheduler.ResourceYouTubeQuota] != 10000 {
		t.Errorf("unexpected capacities %v", sc.Capacities)
	}

	cfg.Scheduler.DefaultMaxRetries = 0
	if got := cfg.SchedulerSettings().DefaultMaxRetries; got >= 0 {
		t.Errorf("zero retries in config should disable retries, got %d", got)
	}
}
