package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/viralshorts/automation/internal/scheduler"
)

// Recommendation thresholds.
const (
	minRealizedDesirability = 60.0
	minSuccessRate          = 0.90
	maxCPUUtilization       = 80.0
	maxQueuedTasks          = 20
)

// Report is a point-in-time automation report.
type Report struct {
	GeneratedAt     time.Time          `json:"generated_at"`
	Stats           RunStats           `json:"automation_stats"`
	Execution       ExecutionSummary   `json:"execution_summary"`
	Performance     PerformanceSummary `json:"performance"`
	Utilization     map[string]float64 `json:"resource_utilization"`
	QueueSizes      map[string]int     `json:"queue_sizes"`
	Recommendations []string           `json:"recommendations"`
}

// ExecutionSummary counts finished tasks.
type ExecutionSummary struct {
	FinishedTasks  int     `json:"finished_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	FailedTasks    int     `json:"failed_tasks"`
	StalledTasks   int     `json:"stalled_tasks"`
	SuccessRate    float64 `json:"success_rate"` // Percent of finished tasks that completed
}

// PerformanceSummary is scheduler.Performance with JSON-friendly units.
type PerformanceSummary struct {
	Attempts             int     `json:"attempts"`
	AttemptSuccessRate   float64 `json:"attempt_success_rate"` // Percent
	MeanExecutionSeconds float64 `json:"mean_execution_seconds"`
	RealizedDesirability float64 `json:"realized_desirability"`
	RetriesScheduled     int     `json:"retries_scheduled"`
}

// BuildReport assembles a report from a status snapshot and run stats.
func BuildReport(now time.Time, status scheduler.Status, stats RunStats) Report {
	finished := status.Completed + status.Failed
	exec := ExecutionSummary{
		FinishedTasks:  finished,
		CompletedTasks: status.Completed,
		FailedTasks:    status.Failed,
		StalledTasks:   status.Stalled,
	}
	if finished > 0 {
		exec.SuccessRate = 100 * float64(status.Completed) / float64(finished)
	}

	p := status.Performance
	queues := make(map[string]int, len(status.QueueSizes))
	for prio, n := range status.QueueSizes {
		queues[prio.String()] = n
	}

	return Report{
		GeneratedAt: now,
		Stats:       stats,
		Execution:   exec,
		Performance: PerformanceSummary{
			Attempts:             p.Attempts,
			AttemptSuccessRate:   100 * p.SuccessRate,
			MeanExecutionSeconds: p.MeanExecutionTime.Seconds(),
			RealizedDesirability: p.RealizedDesirability,
			RetriesScheduled:     p.RetriesScheduled,
		},
		Utilization:     status.Utilization,
		QueueSizes:      queues,
		Recommendations: Recommendations(status),
	}
}

// Recommendations suggests tuning changes based on status.
func Recommendations(status scheduler.Status) []string {
	out := []string{}
	p := status.Performance

	if p.Successes > 0 && p.RealizedDesirability < minRealizedDesirability {
		out = append(out, "Consider adjusting content selection criteria to improve viral potential")
	}
	if p.Attempts > 0 && p.SuccessRate < minSuccessRate {
		out = append(out, "Review failed tasks to identify and resolve common issues")
	}
	if status.Utilization[scheduler.ResourceCPU] > maxCPUUtilization {
		out = append(out, "Consider reducing concurrent tasks to optimize CPU usage")
	}

	queued := 0
	for _, n := range status.QueueSizes {
		queued += n
	}
	if queued > maxQueuedTasks {
		out = append(out, "High task queue detected - consider increasing processing capacity")
	}
	return out
}

// GenerateReport builds a report from the engine's current status, writes it
// to the reports directory and the report store when configured, and
// returns it.
func (a *Automation) GenerateReport(ctx context.Context) (Report, error) {
	report := BuildReport(a.now(), a.engine.GetStatus(), a.Stats())

	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return Report{}, fmt.Errorf("marshaling report: %w", err)
	}

	if a.cfg.ReportsDir != "" {
		if err := os.MkdirAll(a.cfg.ReportsDir, 0755); err != nil {
			return Report{}, fmt.Errorf("creating reports directory: %w", err)
		}
		name := fmt.Sprintf("automation_report_%s.json", report.GeneratedAt.Format("20060102_150405"))
		path := filepath.Join(a.cfg.ReportsDir, name)
		if err := os.WriteFile(path, body, 0644); err != nil {
			return Report{}, fmt.Errorf("writing report: %w", err)
		}
		a.log.Info().Str("path", path).Msg("automation.report_saved")
	}

	if a.store != nil {
		if _, err := a.store.SaveReport(ctx, report.GeneratedAt, body); err != nil {
			return Report{}, err
		}
	}

	a.mu.Lock()
	a.stats.ReportsGenerated++
	a.mu.Unlock()

	return report, nil
}

// Summary renders the report as a few human-readable lines.
func (r Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Automation report, %s\n", r.GeneratedAt.Format(time.RFC1123))

	last := "never"
	if !r.Stats.LastRun.IsZero() {
		last = humanize.RelTime(r.Stats.LastRun, r.GeneratedAt, "ago", "from now")
	}
	fmt.Fprintf(&b, "  runs: %s (%s failed), last %s\n",
		humanize.Comma(int64(r.Stats.TotalRuns)), humanize.Comma(int64(r.Stats.FailedRuns)), last)

	fmt.Fprintf(&b, "  tasks: %s completed, %s failed, %s stalled (%.1f%% success)\n",
		humanize.Comma(int64(r.Execution.CompletedTasks)),
		humanize.Comma(int64(r.Execution.FailedTasks)),
		humanize.Comma(int64(r.Execution.StalledTasks)),
		r.Execution.SuccessRate)

	mean := time.Duration(r.Performance.MeanExecutionSeconds * float64(time.Second)).Round(time.Second)
	fmt.Fprintf(&b, "  attempts: %s, mean run %s, %s retries, desirability %.0f\n",
		humanize.Comma(int64(r.Performance.Attempts)), mean,
		humanize.Comma(int64(r.Performance.RetriesScheduled)),
		r.Performance.RealizedDesirability)

	if len(r.Recommendations) == 0 {
		b.WriteString("  no recommendations\n")
	}
	for _, rec := range r.Recommendations {
		fmt.Fprintf(&b, "  - %s\n", rec)
	}
	return b.String()
}
