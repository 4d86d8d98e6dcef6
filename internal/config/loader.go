package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed files and invalid values are.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.contentpipe/config.{json,yaml,yml}
// Project: .contentpipe/config.{json,yaml,yml} (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	return Load(findConfig(filepath.Join(homeDir, ".contentpipe")), findConfig(".contentpipe"))
}

// findConfig returns the first config file present in dir, or "" if none.
func findConfig(dir string) string {
	for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// mergeConfigFile decodes a config file over base. Only keys present in the
// file change; resource maps merge per key.
func mergeConfigFile(base *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	jsonBytes, err := toJSON(path, data)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(jsonBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(base); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// toJSON converts YAML files to JSON so both formats share the json tags and
// the Duration decoder.
func toJSON(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if doc == nil {
		return []byte("{}"), nil
	}

	normalized, err := normalizeYAML(doc)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	out, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("converting %s: %w", path, err)
	}
	return out, nil
}

func normalizeYAML(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			n, err := normalizeYAML(val)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("non-string key %v", k)
			}
			n, err := normalizeYAML(val)
			if err != nil {
				return nil, err
			}
			out[ks] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			n, err := normalizeYAML(val)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case time.Time:
		return x.Format(time.RFC3339), nil
	default:
		return v, nil
	}
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	var errs []error

	s := c.Scheduler
	if s.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("scheduler.max_concurrent must be at least 1, got %d", s.MaxConcurrent))
	}
	if s.DefaultMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("scheduler.default_max_retries must not be negative"))
	}
	for name, d := range map[string]Duration{
		"idle_interval":    s.IdleInterval,
		"attempt_timeout":  s.AttemptTimeout,
		"retry_base":       s.RetryBase,
		"retry_max":        s.RetryMax,
		"breaker_cooldown": s.BreakerCooldown,
	} {
		if d.Duration < 0 {
			errs = append(errs, fmt.Errorf("scheduler.%s must not be negative", name))
		}
	}
	if s.RetryMax.Duration > 0 && s.RetryMax.Duration < s.RetryBase.Duration {
		errs = append(errs, fmt.Errorf("scheduler.retry_max (%s) is below retry_base (%s)", s.RetryMax, s.RetryBase))
	}

	for name, capacity := range c.Resources {
		if capacity < 0 {
			errs = append(errs, fmt.Errorf("resources.%s must not be negative", name))
		}
	}

	if c.Pipeline.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("pipeline.batch_size must be at least 1"))
	}

	a := c.Automation
	for name, spec := range map[string]string{"daily_pipeline": a.DailyPipeline, "weekly_report": a.WeeklyReport} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("automation.%s: %w", name, err))
		}
	}
	if a.TriggerBurst < 1 {
		errs = append(errs, fmt.Errorf("automation.trigger_burst must be at least 1"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("automation.timezone: %w", err))
	}

	switch c.Mirror.Driver {
	case MirrorNone, "":
	case MirrorSQLite:
		if c.Mirror.SQLitePath == "" {
			errs = append(errs, fmt.Errorf("mirror.sqlite_path is required for the sqlite driver"))
		}
	case MirrorRedis:
		if c.Mirror.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("mirror.redis_addr is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("mirror.driver %q is not one of none, sqlite, redis", c.Mirror.Driver))
	}

	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if f := c.Logging.Format; f != "console" && f != "json" {
		errs = append(errs, fmt.Errorf("logging.format %q is not console or json", f))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
