package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/viralshorts/automation/internal/events"
	"github.com/viralshorts/automation/internal/scheduler"
)

// statusInterval is how often the dashboard polls the scheduler status.
const statusInterval = time.Second

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneProgress
	numPanes
)

// Engine is the scheduler as seen by the dashboard.
type Engine interface {
	GetStatus() scheduler.Status
	Cancel(id string) bool
}

// Controller runs operator actions. It may be nil, disabling those keys.
type Controller interface {
	RunPipeline() ([]string, error)
	TriggerEmergency(params scheduler.Params) (string, error)
}

// actionMsg reports the outcome of an operator action.
type actionMsg struct {
	text string
	err  error
}

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	taskPane     TaskPaneModel
	progressPane ProgressPaneModel
	focusedPane  PaneID
	eventSub     <-chan events.Event
	engine       Engine
	ctl          Controller
	flash        string
	width        int
	height       int
	quitting     bool
}

// New creates a new TUI model subscribed to every topic on the bus.
func New(eventBus *events.EventBus, engine Engine, ctl Controller) Model {
	return Model{
		taskPane:     NewTaskPaneModel(),
		progressPane: NewProgressPaneModel(),
		focusedPane:  PaneTasks,
		eventSub:     eventBus.SubscribeAll(events.DefaultBufferSize),
		engine:       engine,
		ctl:          ctl,
	}
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.eventSub), m.pollStatus())
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

func (m Model) pollStatus() tea.Cmd {
	if m.engine == nil {
		return nil
	}
	return tea.Tick(statusInterval, func(time.Time) tea.Msg {
		return statusMsg(m.engine.GetStatus())
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % numPanes
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + numPanes - 1) % numPanes
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneProgress
			m.updateFocusStates()

		case KeyPipeline:
			cmds = append(cmds, m.runPipeline())

		case KeyEmergency:
			cmds = append(cmds, m.triggerEmergency())

		case KeyCancel:
			m.flash = m.cancelSelected()

		default:
			if m.focusedPane == PaneTasks {
				var cmd tea.Cmd
				m.taskPane, cmd = m.taskPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()

	case statusMsg:
		var cmd tea.Cmd
		m.progressPane, cmd = m.progressPane.Update(msg)
		cmds = append(cmds, cmd, m.pollStatus())

	case actionMsg:
		if msg.err != nil {
			m.flash = "error: " + msg.err.Error()
		} else {
			m.flash = msg.text
		}

	case events.RoundCompletedEvent:
		var cmd tea.Cmd
		m.progressPane, cmd = m.progressPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.Event:
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

func (m Model) runPipeline() tea.Cmd {
	if m.ctl == nil {
		return nil
	}
	ctl := m.ctl
	return func() tea.Msg {
		ids, err := ctl.RunPipeline()
		return actionMsg{text: fmt.Sprintf("pipeline submitted (%d tasks)", len(ids)), err: err}
	}
}

func (m Model) triggerEmergency() tea.Cmd {
	if m.ctl == nil {
		return nil
	}
	ctl := m.ctl
	return func() tea.Msg {
		id, err := ctl.TriggerEmergency(nil)
		return actionMsg{text: "emergency task " + id + " submitted", err: err}
	}
}

func (m Model) cancelSelected() string {
	t, ok := m.taskPane.Selected()
	if !ok || m.engine == nil {
		return ""
	}
	if m.engine.Cancel(t.TaskID) {
		return "cancel requested for " + t.TaskID
	}
	return t.TaskID + " is already finished"
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, m.taskPane.View(), m.progressPane.View())

	helpBar := HelpView()
	if m.flash != "" {
		helpBar = lipgloss.JoinHorizontal(lipgloss.Top, helpBar, "  ", StyleFlash.Render(m.flash))
	}

	return lipgloss.JoinVertical(lipgloss.Left, mainContent, helpBar)
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 60) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1 // help bar

	m.taskPane.SetSize(leftWidth, availableHeight)
	m.progressPane.SetSize(rightWidth, availableHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
	m.progressPane.SetFocused(m.focusedPane == PaneProgress)
}
