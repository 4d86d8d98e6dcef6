package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/viralshorts/automation/internal/config"
	"github.com/viralshorts/automation/internal/events"
	"github.com/viralshorts/automation/internal/logging"
	"github.com/viralshorts/automation/internal/orchestrator"
	"github.com/viralshorts/automation/internal/persistence"
	"github.com/viralshorts/automation/internal/predictor"
	"github.com/viralshorts/automation/internal/scheduler"
	"github.com/viralshorts/automation/internal/simulate"
	"github.com/viralshorts/automation/internal/tui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath  string
	tui         bool
	once        bool
	latency     time.Duration
	failureRate float64
	seed        uint64
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("contentpipe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "config file (default: ~/.contentpipe and .contentpipe)")
	fs.BoolVar(&o.tui, "tui", false, "show the interactive dashboard")
	fs.BoolVar(&o.once, "once", false, "run one pipeline to completion, print a report and exit")
	fs.DurationVar(&o.latency, "sim-latency", 2*time.Second, "simulated handler latency")
	fs.Float64Var(&o.failureRate, "sim-failure-rate", 0.1, "chance a simulated attempt fails")
	fs.Uint64Var(&o.seed, "sim-seed", 0, "seed for simulated outcomes (0 = random)")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.tui && o.once {
		return o, errors.New("-tui and -once are mutually exclusive")
	}
	return o, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadDefault()
	}
	return config.Load("", path)
}

// snapshotStore is a mirror that can also list what it holds.
type snapshotStore interface {
	scheduler.Mirror
	List(ctx context.Context) ([][]byte, error)
	Close() error
}

func openMirror(ctx context.Context, cfg config.MirrorConfig) (snapshotStore, *persistence.SQLiteStore, error) {
	switch cfg.Driver {
	case config.MirrorSQLite:
		store, err := persistence.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case config.MirrorRedis:
		m, err := persistence.NewRedisMirror(ctx, cfg.RedisAddr, cfg.RedisKey)
		if err != nil {
			return nil, nil, err
		}
		return m, nil, nil
	default:
		return nil, nil, nil
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// The dashboard owns the terminal; logs then only go to the log file.
	var console io.Writer = stderr
	if opts.tui {
		console = nil
	}
	log, logCloser, err := logging.New(cfg.Logging, console)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	bus := events.NewEventBus()
	defer bus.Close()

	mirror, reports, err := openMirror(ctx, cfg.Mirror)
	if err != nil {
		return fmt.Errorf("opening task mirror: %w", err)
	}
	if mirror != nil {
		defer mirror.Close()
	}

	schedOpts := []scheduler.Option{
		scheduler.WithLogger(log.With().Str("component", "scheduler").Logger()),
		scheduler.WithPredictor(predictor.NewAudiencePredictor()),
		scheduler.WithPublisher(bus),
	}
	if mirror != nil {
		schedOpts = append(schedOpts, scheduler.WithMirror(mirror))
	}
	sched := scheduler.New(cfg.SchedulerSettings(), schedOpts...)
	simulate.Register(sched, simulate.Options{Latency: opts.latency, FailureRate: opts.failureRate, Seed: opts.seed})

	if mirror != nil && cfg.Mirror.Restore {
		if err := restore(ctx, sched, mirror, log); err != nil {
			return err
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	autoOpts := []orchestrator.Option{orchestrator.WithLogger(log.With().Str("component", "automation").Logger())}
	if reports != nil {
		autoOpts = append(autoOpts, orchestrator.WithReportStore(reports))
	}
	auto, err := orchestrator.NewAutomation(sched, orchestrator.AutomationConfig{
		BatchSize:          cfg.Pipeline.BatchSize,
		DailyPipeline:      cfg.Automation.DailyPipeline,
		WeeklyReport:       cfg.Automation.WeeklyReport,
		TriggerMinInterval: cfg.Automation.TriggerMinInterval.Duration,
		TriggerBurst:       cfg.Automation.TriggerBurst,
		ReportsDir:         cfg.Automation.ReportsDir,
		Location:           loc,
	}, autoOpts...)
	if err != nil {
		return err
	}

	if opts.once {
		return runOnce(ctx, sched, auto, stdout)
	}

	if cfg.Pipeline.RunOnStart {
		if _, err := auto.RunPipeline(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	if cfg.Automation.Enabled {
		g.Go(func() error { return auto.Run(gctx) })
	}
	if opts.tui {
		g.Go(func() error {
			defer cancel() // quitting the dashboard stops everything
			p := tea.NewProgram(tui.New(bus, sched, auto), tea.WithAltScreen(), tea.WithContext(gctx))
			_, err := p.Run()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		})
	}

	err = g.Wait()
	log.Info().Msg("shutdown complete")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func restore(ctx context.Context, sched *scheduler.Scheduler, mirror snapshotStore, log zerolog.Logger) error {
	snapshots, err := mirror.List(ctx)
	if err != nil {
		return fmt.Errorf("listing mirrored tasks: %w", err)
	}
	n, err := sched.Restore(snapshots)
	if err != nil {
		// Undecodable snapshots are skipped; the rest are already queued.
		log.Warn().Err(err).Msg("restore.partial")
	}
	if n > 0 {
		log.Info().Int("queued", n).Msg("restore.resumed")
	}
	return nil
}

// runOnce submits a pipeline and drives rounds until nothing runnable is
// left, then prints a report.
func runOnce(ctx context.Context, sched *scheduler.Scheduler, auto *orchestrator.Automation, stdout io.Writer) error {
	if _, err := auto.RunPipeline(); err != nil {
		return err
	}

	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		n, err := sched.RunRound(ctx)
		if err != nil {
			return err
		}
		st := sched.GetStatus()
		if st.Running == 0 && st.Pending == st.Stalled {
			break
		}
		if n > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}

	report, err := auto.GenerateReport(ctx)
	if err != nil {
		return err
	}
	_, err = io.WriteString(stdout, report.Summary())
	return err
}
