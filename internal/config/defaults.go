package config

import (
	"time"

	"github.com/viralshorts/automation/internal/scheduler"
)

// Mirror drivers.
const (
	MirrorNone   = "none"
	MirrorSQLite = "sqlite"
	MirrorRedis  = "redis"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			MaxConcurrent:       3,
			IdleInterval:        D(10 * time.Second),
			DefaultMaxRetries:   3,
			RetryBase:           D(30 * time.Second),
			RetryMax:            D(300 * time.Second),
			BreakerTripFailures: 5,
			BreakerCooldown:     D(30 * time.Second),
		},
		Resources: scheduler.DefaultCapacities(),
		Pipeline: PipelineConfig{
			BatchSize: scheduler.DefaultBatchSize,
		},
		Automation: AutomationConfig{
			DailyPipeline:      "0 9 * * *",
			WeeklyReport:       "0 10 * * 0",
			TriggerMinInterval: D(time.Minute),
			TriggerBurst:       1,
			ReportsDir:         ".contentpipe/reports",
			Timezone:           "Local",
		},
		Mirror: MirrorConfig{
			Driver:     MirrorNone,
			SQLitePath: ".contentpipe/tasks.db",
			RedisAddr:  "localhost:6379",
			RedisKey:   "smart_tasks",
			Restore:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// SchedulerSettings converts the scheduler and resources sections.
func (c *Config) SchedulerSettings() scheduler.Config {
	s := c.Scheduler
	retries := s.DefaultMaxRetries
	if retries == 0 {
		retries = -1 // scheduler.Config reads 0 as unset
	}
	return scheduler.Config{
		MaxConcurrent:     s.MaxConcurrent,
		IdleInterval:      s.IdleInterval.Duration,
		DefaultMaxRetries: retries,
		AttemptTimeout:    s.AttemptTimeout.Duration,
		Retry: scheduler.RetryPolicy{
			Base: s.RetryBase.Duration,
			Max:  s.RetryMax.Duration,
		},
		Breaker: scheduler.BreakerSettings{
			TripFailures: s.BreakerTripFailures,
			Cooldown:     s.BreakerCooldown.Duration,
		},
		Capacities:            c.Resources,
		FailStalledDependents: s.FailStalledDependents,
	}
}

// Location resolves the automation timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Automation.Timezone == "" || c.Automation.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Automation.Timezone)
}
