package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/viralshorts/automation/internal/events"
	"github.com/viralshorts/automation/internal/scheduler"
)

// statusMsg carries a polled scheduler status.
type statusMsg scheduler.Status

// ProgressPaneModel shows overall progress, queues and resource use.
type ProgressPaneModel struct {
	round     uint64
	total     int
	completed int
	running   int
	failed    int
	cancelled int
	pending   int
	status    *scheduler.Status
	width     int
	height    int
	focused   bool
}

// NewProgressPaneModel creates a new progress pane model.
func NewProgressPaneModel() ProgressPaneModel {
	return ProgressPaneModel{}
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case events.RoundCompletedEvent:
		m.round = msg.Round
		m.total = msg.Total
		m.completed = msg.Completed
		m.running = msg.Running
		m.failed = msg.Failed
		m.cancelled = msg.Cancelled
		m.pending = msg.Pending

	case statusMsg:
		st := scheduler.Status(msg)
		m.status = &st
		m.round = st.Rounds
		m.total = st.Total
		m.completed = st.Completed
		m.running = st.Running
		m.failed = st.Failed
		m.cancelled = st.Cancelled
		m.pending = st.Pending
	}

	return m, nil
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render(fmt.Sprintf("Progress, round %s", humanize.Comma(int64(m.round))))
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Total:     %d\n", m.total)
	fmt.Fprintf(&b, "Completed: %s\n", StyleStatusCompleted.Render(fmt.Sprintf("%d", m.completed)))
	fmt.Fprintf(&b, "Running:   %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", m.running)))
	fmt.Fprintf(&b, "Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", m.failed)))
	fmt.Fprintf(&b, "Pending:   %s\n", StyleMuted.Render(fmt.Sprintf("%d", m.pending)))
	if m.cancelled > 0 {
		fmt.Fprintf(&b, "Cancelled: %d\n", m.cancelled)
	}
	b.WriteString("\n")

	barWidth := min(m.width-12, 40)
	if m.total > 0 && barWidth > 0 {
		b.WriteString(progressBar(barWidth, m.total, m.completed, m.failed, m.running))
		fmt.Fprintf(&b, "  %d/%d\n", m.completed, m.total)
	}

	if st := m.status; st != nil {
		b.WriteString("\n")
		b.WriteString(m.renderStatus(*st, barWidth))
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

func (m ProgressPaneModel) renderStatus(st scheduler.Status, barWidth int) string {
	var b strings.Builder

	if st.Stalled > 0 {
		b.WriteString(StyleStatusStalled.Render(fmt.Sprintf("Stalled:   %d", st.Stalled)))
		b.WriteString("\n")
	}

	var queues []string
	for _, p := range []scheduler.Priority{
		scheduler.PriorityEmergency, scheduler.PriorityCritical, scheduler.PriorityHigh,
		scheduler.PriorityNormal, scheduler.PriorityLow,
	} {
		if n := st.QueueSizes[p]; n > 0 {
			queues = append(queues, fmt.Sprintf("%s %d", p, n))
		}
	}
	if len(queues) > 0 {
		fmt.Fprintf(&b, "Queued:    %s\n", strings.Join(queues, ", "))
	}

	perf := st.Performance
	if perf.Attempts > 0 {
		fmt.Fprintf(&b, "Success:   %.0f%% of %s attempts, mean %s\n",
			100*perf.SuccessRate, humanize.Comma(int64(perf.Attempts)), perf.MeanExecutionTime.Round(time.Second))
		fmt.Fprintf(&b, "Retries:   %d, desirability %.0f\n", perf.RetriesScheduled, perf.RealizedDesirability)
	}

	if len(st.Utilization) > 0 {
		b.WriteString("\n")
		names := make([]string, 0, len(st.Utilization))
		width := 0
		for name := range st.Utilization {
			names = append(names, name)
			width = max(width, len(name))
		}
		sort.Strings(names)
		gauge := max(5, min(barWidth-width-8, 20))
		for _, name := range names {
			pct := st.Utilization[name]
			fmt.Fprintf(&b, "%-*s %s %3.0f%%\n", width, name, gauge100(gauge, pct), pct)
		}
	}
	return b.String()
}

func progressBar(width, total, completed, failed, running int) string {
	completedWidth := (completed * width) / total
	failedWidth := (failed * width) / total
	runningWidth := (running * width) / total
	pendingWidth := width - completedWidth - failedWidth - runningWidth

	bar := StyleStatusCompleted.Render(strings.Repeat("=", max(0, completedWidth)))
	bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
	bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
	bar += StyleMuted.Render(strings.Repeat(".", max(0, pendingWidth)))
	return "[" + bar + "]"
}

// gauge100 renders pct (0..100) as a bar of the given width.
func gauge100(width int, pct float64) string {
	filled := min(width, max(0, int(pct*float64(width)/100+0.5)))
	style := StyleStatusCompleted
	if pct > 80 {
		style = StyleStatusFailed
	} else if pct > 50 {
		style = StyleStatusRunning
	}
	return "[" + style.Render(strings.Repeat("|", filled)) + strings.Repeat(" ", width-filled) + "]"
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
