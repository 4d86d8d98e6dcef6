package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/viralshorts/automation/internal/scheduler"
)

// ErrThrottled is returned when a manual trigger arrives faster than the
// configured trigger rate allows.
var ErrThrottled = errors.New("trigger throttled")

// Engine is the part of the scheduler the automation runner drives.
type Engine interface {
	Submit(spec scheduler.TaskSpec) (string, error)
	SubmitPipeline(batchSize int) ([]string, error)
	GetStatus() scheduler.Status
}

// ReportStore keeps generated report bodies.
type ReportStore interface {
	SaveReport(ctx context.Context, generatedAt time.Time, body []byte) (int64, error)
}

// AutomationConfig configures the automation runner.
type AutomationConfig struct {
	BatchSize          int            // Pipeline batch size
	DailyPipeline      string         // Cron spec; empty disables
	WeeklyReport       string         // Cron spec; empty disables
	TriggerMinInterval time.Duration  // Minimum spacing of manual triggers (default 1m)
	TriggerBurst       int            // Triggers allowed back to back (default 1)
	ReportsDir         string         // Report files are written here when set
	Location           *time.Location // Cron timezone (default time.Local)
}

// RunStats counts what the runner has done since it started.
type RunStats struct {
	TotalRuns            int       `json:"total_runs"`
	SuccessfulRuns       int       `json:"successful_runs"`
	FailedRuns           int       `json:"failed_runs"`
	EmergencyTriggers    int       `json:"emergency_triggers"`
	OptimizationTriggers int       `json:"optimization_triggers"`
	ThrottledTriggers    int       `json:"throttled_triggers"`
	ReportsGenerated     int       `json:"reports_generated"`
	LastRun              time.Time `json:"last_run,omitzero"`
	NextRun              time.Time `json:"next_run,omitzero"`
}

// Option configures an Automation.
type Option func(*Automation)

// WithLogger sets the runner's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(a *Automation) { a.log = log }
}

// WithReportStore also saves every report to store.
func WithReportStore(store ReportStore) Option {
	return func(a *Automation) { a.store = store }
}

// WithClock overrides the time source used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Automation) { a.now = now }
}

// Automation submits pipelines on a cron schedule, generates periodic
// reports, and accepts throttled manual triggers.
type Automation struct {
	cfg     AutomationConfig
	engine  Engine
	store   ReportStore
	log     zerolog.Logger
	now     func() time.Time
	cron    *cron.Cron
	limiter *rate.Limiter
	dailyID cron.EntryID

	mu    sync.Mutex
	stats RunStats
}

// NewAutomation validates the cron specs and registers the jobs. Nothing runs
// until Run is called.
func NewAutomation(engine Engine, cfg AutomationConfig, opts ...Option) (*Automation, error) {
	if cfg.TriggerMinInterval <= 0 {
		cfg.TriggerMinInterval = time.Minute
	}
	if cfg.TriggerBurst <= 0 {
		cfg.TriggerBurst = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	a := &Automation{
		cfg:     cfg,
		engine:  engine,
		log:     zerolog.Nop(),
		now:     time.Now,
		limiter: rate.NewLimiter(rate.Every(cfg.TriggerMinInterval), cfg.TriggerBurst),
	}
	for _, opt := range opts {
		opt(a)
	}

	cl := cronLogger{a.log}
	a.cron = cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if cfg.DailyPipeline != "" {
		id, err := a.cron.AddFunc(cfg.DailyPipeline, func() { _, _ = a.RunPipeline() })
		if err != nil {
			return nil, fmt.Errorf("invalid daily pipeline schedule %q: %w", cfg.DailyPipeline, err)
		}
		a.dailyID = id
	}
	if cfg.WeeklyReport != "" {
		_, err := a.cron.AddFunc(cfg.WeeklyReport, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := a.GenerateReport(ctx); err != nil {
				a.log.Error().Err(err).Msg("automation.report_failed")
			}
		})
		if err != nil {
			return nil, fmt.Errorf("invalid weekly report schedule %q: %w", cfg.WeeklyReport, err)
		}
	}

	return a, nil
}

// Run starts the cron jobs and blocks until ctx is cancelled, then waits for
// any job still running.
func (a *Automation) Run(ctx context.Context) error {
	a.cron.Start()
	a.log.Info().
		Str("daily_pipeline", a.cfg.DailyPipeline).
		Str("weekly_report", a.cfg.WeeklyReport).
		Time("next_run", a.nextRun()).
		Msg("automation.started")

	<-ctx.Done()

	<-a.cron.Stop().Done()
	a.log.Info().Msg("automation.stopped")
	return ctx.Err()
}

// RunPipeline submits one content pipeline now.
func (a *Automation) RunPipeline() ([]string, error) {
	ids, err := a.engine.SubmitPipeline(a.cfg.BatchSize)

	a.mu.Lock()
	a.stats.TotalRuns++
	a.stats.LastRun = a.now()
	if err != nil {
		a.stats.FailedRuns++
	} else {
		a.stats.SuccessfulRuns++
	}
	a.mu.Unlock()

	if err != nil {
		a.log.Error().Err(err).Msg("automation.pipeline_failed")
		return nil, fmt.Errorf("submitting pipeline: %w", err)
	}
	a.log.Info().Strs("task_ids", ids).Int("batch_size", a.cfg.BatchSize).Msg("automation.pipeline_submitted")
	return ids, nil
}

// TriggerEmergency submits an emergency content task, subject to the
// trigger rate limit.
func (a *Automation) TriggerEmergency(params scheduler.Params) (string, error) {
	return a.trigger(scheduler.KindEmergencyContent, params, func(s *RunStats) { s.EmergencyTriggers++ })
}

// TriggerOptimization submits a viral optimization task, subject to the
// trigger rate limit.
func (a *Automation) TriggerOptimization(params scheduler.Params) (string, error) {
	return a.trigger(scheduler.KindViralOptimization, params, func(s *RunStats) { s.OptimizationTriggers++ })
}

func (a *Automation) trigger(kind scheduler.Kind, params scheduler.Params, count func(*RunStats)) (string, error) {
	if !a.limiter.Allow() {
		a.mu.Lock()
		a.stats.ThrottledTriggers++
		a.mu.Unlock()
		a.log.Warn().Stringer("kind", kind).Msg("automation.trigger_throttled")
		return "", fmt.Errorf("%s: %w", kind, ErrThrottled)
	}

	id, err := a.engine.Submit(scheduler.TaskSpec{Kind: kind, Params: params})
	if err != nil {
		return "", fmt.Errorf("submitting %s: %w", kind, err)
	}

	a.mu.Lock()
	count(&a.stats)
	a.mu.Unlock()

	a.log.Info().Str("task_id", id).Stringer("kind", kind).Msg("automation.triggered")
	return id, nil
}

// Stats returns a copy of the run statistics.
func (a *Automation) Stats() RunStats {
	a.mu.Lock()
	s := a.stats
	a.mu.Unlock()
	s.NextRun = a.nextRun()
	return s
}

func (a *Automation) nextRun() time.Time {
	if a.dailyID == 0 {
		return time.Time{}
	}
	return a.cron.Entry(a.dailyID).Next
}

// cronLogger routes cron's own messages into zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg("cron." + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron." + msg)
}
