package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/viralshorts/automation/internal/events"
)

// TaskState is what the dashboard knows about one task, built from events.
type TaskState struct {
	TaskID   string
	Kind     string
	Priority string
	Status   string // "pending", "running", "retrying", "completed", "failed", "cancelled", "stalled"
	Attempts int
	History  []string
	Updated  time.Time
}

// maxTrackedTasks bounds the dashboard's memory; the task updated least
// recently is dropped first.
const maxTrackedTasks = 1000

// TaskPaneModel is the task list plus the selected task's history.
type TaskPaneModel struct {
	tasks       *lru.Cache[string, *TaskState] // taskID -> state
	taskOrder   []string                       // submission order for display
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	now         func() time.Time
}

// NewTaskPaneModel creates an empty task pane.
func NewTaskPaneModel() TaskPaneModel {
	return newTaskPaneModel(maxTrackedTasks)
}

func newTaskPaneModel(capacity int) TaskPaneModel {
	tasks, err := lru.New[string, *TaskState](capacity)
	if err != nil {
		panic(err) // only for a non-positive capacity
	}
	return TaskPaneModel{
		tasks:    tasks,
		viewport: viewport.New(0, 0),
		now:      time.Now,
	}
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.taskOrder)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskSubmittedEvent:
		t := m.track(msg.ID, msg.Kind, msg.Timestamp)
		t.Priority = msg.Priority
		t.Status = "pending"
		m.note(t, msg.Timestamp, "submitted at %s priority", msg.Priority)

	case events.TaskStartedEvent:
		t := m.track(msg.ID, msg.Kind, msg.Timestamp)
		t.Status = "running"
		t.Attempts = msg.Attempt
		m.note(t, msg.Timestamp, "attempt %d started (score %.0f)", msg.Attempt, msg.Score)

	case events.TaskCompletedEvent:
		t := m.track(msg.ID, msg.Kind, msg.Timestamp)
		t.Status = "completed"
		m.note(t, msg.Timestamp, "completed in %s", msg.Duration.Round(time.Millisecond))

	case events.TaskRetryScheduledEvent:
		t := m.track(msg.ID, msg.Kind, msg.Timestamp)
		t.Status = "retrying"
		t.Priority = msg.Priority
		m.note(t, msg.Timestamp, "retry %d %s at %s priority: %v",
			msg.RetryCount, humanize.RelTime(msg.ScheduledAt, msg.Timestamp, "ago", "from now"), msg.Priority, msg.Err)

	case events.TaskFailedEvent:
		t := m.track(msg.ID, msg.Kind, msg.Timestamp)
		t.Status = "failed"
		m.note(t, msg.Timestamp, "failed: %v", msg.Err)

	case events.TaskCancelledEvent:
		t := m.track(msg.ID, msg.Kind, msg.Timestamp)
		t.Status = "cancelled"
		m.note(t, msg.Timestamp, "cancelled")

	case events.TaskStalledEvent:
		t := m.track(msg.ID, msg.Kind, msg.Timestamp)
		t.Status = "stalled"
		m.note(t, msg.Timestamp, "stalled behind %s", msg.BlockedBy)
	}

	return m, cmd
}

// track returns the state for id, adding it on first sight.
func (m *TaskPaneModel) track(id, kind string, at time.Time) *TaskState {
	t, ok := m.tasks.Get(id)
	if !ok {
		t = &TaskState{TaskID: id, Kind: kind}
		if evicted := m.tasks.Add(id, t); evicted {
			m.dropEvicted()
		}
		m.taskOrder = append(m.taskOrder, id)
	}
	t.Updated = at
	return t
}

// dropEvicted removes evicted tasks from the display order, keeping the
// selection on the same task where possible.
func (m *TaskPaneModel) dropEvicted() {
	selected := m.selectedTaskID()
	kept := m.taskOrder[:0]
	for _, id := range m.taskOrder {
		if m.tasks.Contains(id) {
			kept = append(kept, id)
		}
	}
	m.taskOrder = kept

	m.selectedIdx = 0
	for i, id := range m.taskOrder {
		if id == selected {
			m.selectedIdx = i
		}
	}
}

func (m *TaskPaneModel) note(t *TaskState, at time.Time, format string, args ...any) {
	t.History = append(t.History, at.Format("15:04:05")+"  "+fmt.Sprintf(format, args...))
	if m.selectedTaskID() == t.TaskID {
		m.updateViewportContent()
	}
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := min(44, m.width/2)
	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render(fmt.Sprintf("Tasks (%s)", humanize.Comma(int64(len(m.taskOrder)))))
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.taskOrder) == 0 {
		b.WriteString(StyleMuted.Render("Waiting for tasks..."))
	}

	// Keep the selection visible once the list outgrows the pane.
	rows := max(1, m.height-6)
	start := 0
	if m.selectedIdx >= rows {
		start = m.selectedIdx - rows + 1
	}

	for i := start; i < len(m.taskOrder) && i < start+rows; i++ {
		t, ok := m.tasks.Peek(m.taskOrder[i])
		if !ok {
			continue
		}
		name := t.Kind
		if t.Attempts > 1 {
			name = fmt.Sprintf("%s #%d", name, t.Attempts)
		}
		age := humanize.RelTime(t.Updated, m.now(), "ago", "from now")
		line := fmt.Sprintf("%s %s", StatusIcon(t.Status), name)
		if room := width - lipgloss.Width(line) - 1; room > len(age) {
			line += strings.Repeat(" ", room-len(age)) + StyleMuted.Render(age)
		}
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	switch status {
	case "running":
		return StyleStatusRunning.Render("●")
	case "retrying":
		return StyleStatusRetrying.Render("↻")
	case "completed":
		return StyleStatusCompleted.Render("✓")
	case "failed":
		return StyleStatusFailed.Render("✗")
	case "stalled":
		return StyleStatusStalled.Render("⊘")
	case "cancelled":
		return StyleMuted.Render("–")
	default:
		return StyleMuted.Render("○")
	}
}

func (m TaskPaneModel) selectedTaskID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.taskOrder) {
		return m.taskOrder[m.selectedIdx]
	}
	return ""
}

// Selected returns the selected task, if any.
func (m TaskPaneModel) Selected() (TaskState, bool) {
	t, ok := m.tasks.Peek(m.selectedTaskID())
	if !ok {
		return TaskState{}, false
	}
	return *t, true
}

func (m *TaskPaneModel) updateViewportContent() {
	t, ok := m.tasks.Peek(m.selectedTaskID())
	if !ok {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}

	header := fmt.Sprintf("%s\n%s  %s priority  %s\n\n", t.TaskID, t.Kind, t.Priority, t.Status)
	m.viewport.SetContent(header + strings.Join(t.History, "\n"))
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) resizeViewport() {
	listWidth := min(44, m.width/2)
	m.viewport.Width = max(10, m.width-listWidth-4)
	m.viewport.Height = max(5, m.height-4)
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
