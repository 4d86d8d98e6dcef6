package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cast"
)

// Duration is a time.Duration that decodes from "90s"/"5m" strings or from a
// plain number of seconds.
type Duration struct {
	time.Duration
}

// D is shorthand for building a Duration.
func D(d time.Duration) Duration { return Duration{d} }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch x := v.(type) {
	case nil:
		d.Duration = 0
	case float64:
		d.Duration = time.Duration(x * float64(time.Second))
	case string:
		if secs, err := cast.ToFloat64E(x); err == nil {
			d.Duration = time.Duration(secs * float64(time.Second))
			return nil
		}
		parsed, err := cast.ToDurationE(x)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", x, err)
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// SchedulerConfig tunes the scheduling loop.
type SchedulerConfig struct {
	MaxConcurrent         int      `json:"max_concurrent"`          // Tasks admitted per round
	IdleInterval          Duration `json:"idle_interval"`           // Sleep when nothing was admitted
	DefaultMaxRetries     int      `json:"default_max_retries"`     // Retries for submissions that leave it unset
	AttemptTimeout        Duration `json:"attempt_timeout"`         // 0 disables
	RetryBase             Duration `json:"retry_base"`              // First retry delay
	RetryMax              Duration `json:"retry_max"`               // Retry delay cap
	BreakerTripFailures   int      `json:"breaker_trip_failures"`   // Consecutive failures per kind; -1 disables
	BreakerCooldown       Duration `json:"breaker_cooldown"`        // Time an open breaker waits before probing
	FailStalledDependents bool     `json:"fail_stalled_dependents"` // Fail tasks whose dependency failed
}

// PipelineConfig controls pipeline submissions.
type PipelineConfig struct {
	BatchSize  int  `json:"batch_size"`
	RunOnStart bool `json:"run_on_start"` // Submit one pipeline at startup
}

// AutomationConfig drives the cron-based automation runner.
type AutomationConfig struct {
	Enabled            bool     `json:"enabled"`
	DailyPipeline      string   `json:"daily_pipeline"`       // Cron spec
	WeeklyReport       string   `json:"weekly_report"`        // Cron spec
	TriggerMinInterval Duration `json:"trigger_min_interval"` // Minimum spacing of manual triggers
	TriggerBurst       int      `json:"trigger_burst"`
	ReportsDir         string   `json:"reports_dir"`
	Timezone           string   `json:"timezone"` // IANA name or "Local"
}

// MirrorConfig selects where task snapshots are written.
type MirrorConfig struct {
	Driver     string `json:"driver"` // "none", "sqlite" or "redis"
	SQLitePath string `json:"sqlite_path"`
	RedisAddr  string `json:"redis_addr"`
	RedisKey   string `json:"redis_key"`
	Restore    bool   `json:"restore"` // Re-queue unfinished tasks at startup
}

// LoggingConfig controls the zerolog logger.
type LoggingConfig struct {
	Level  string `json:"level"`          // trace, debug, info, warn, error
	Format string `json:"format"`         // "console" or "json"
	File   string `json:"file,omitempty"` // Also append JSON lines here
}

// Config is the top-level configuration.
type Config struct {
	Scheduler  SchedulerConfig    `json:"scheduler"`
	Resources  map[string]float64 `json:"resources"`
	Pipeline   PipelineConfig     `json:"pipeline"`
	Automation AutomationConfig   `json:"automation"`
	Mirror     MirrorConfig       `json:"mirror"`
	Logging    LoggingConfig      `json:"logging"`
}
