package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pulseline-io/pulseline/types"
)

// maxResponseLines bounds the response log kept on screen.
const maxResponseLines = 8

// eventMsg wraps one monitor event for the Bubble Tea loop.
type eventMsg types.Event

// streamClosedMsg signals that the worker closed the monitor stream.
type streamClosedMsg struct{}

// MonitorModel is a Bubble Tea model that follows a live worker run.
// It consumes the worker's monitor stream; stream closure is the
// end-of-run signal.
type MonitorModel struct {
	runID     string
	procedure string
	events    <-chan types.Event
	stop      func()

	bar       progress.Model
	percent   float64
	status    types.Status
	responses []types.Response
	done      bool
	stopped   bool
	quitting  bool
}

// NewMonitorModel creates a live monitor model. stop requests a
// cooperative stop on the underlying worker and may be nil for
// read-only observation.
func NewMonitorModel(runID, procedure string, events <-chan types.Event, stop func()) MonitorModel {
	return MonitorModel{
		runID:     runID,
		procedure: procedure,
		events:    events,
		stop:      stop,
		bar:       progress.New(progress.WithDefaultGradient()),
		status:    types.StatusQueued,
	}
}

// Init implements tea.Model.
func (m MonitorModel) Init() tea.Cmd {
	return waitForEvent(m.events)
}

// waitForEvent blocks on the monitor stream for one event.
func waitForEvent(events <-chan types.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(ev)
	}
}

// Update implements tea.Model.
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.apply(types.Event(msg))
		return m, waitForEvent(m.events)

	case streamClosedMsg:
		m.done = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Stop):
			if m.stop != nil && !m.done {
				m.stop()
				m.stopped = true
			}
			return m, nil
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// apply folds one monitor event into the view state.
func (m *MonitorModel) apply(ev types.Event) {
	switch ev.Topic {
	case types.TopicStatus:
		if s, ok := ev.Payload.(types.Status); ok {
			m.status = s
		}
	case types.TopicProgress:
		switch p := ev.Payload.(type) {
		case float64:
			m.percent = p
		case int:
			m.percent = float64(p)
		}
	case types.TopicResponses:
		if resp, ok := ev.Payload.(types.Response); ok {
			m.responses = append(m.responses, resp)
			if len(m.responses) > maxResponseLines {
				m.responses = m.responses[len(m.responses)-maxResponseLines:]
			}
		}
	}
}

// View implements tea.Model.
func (m MonitorModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Run %s", m.runID)))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Procedure:"),
		ValueStyle.Render(m.procedure)))
	status := string(m.status)
	if m.stopped && !m.status.IsTerminal() {
		status += " (stop requested)"
	}
	b.WriteString(fmt.Sprintf("%s %s\n\n",
		LabelStyle.Render("Status:"),
		StatusStyle(string(m.status)).Render(status)))

	b.WriteString(m.bar.ViewAs(m.percent / 100))
	b.WriteString("\n")

	if len(m.responses) > 0 {
		b.WriteString("\n")
		for _, resp := range m.responses {
			line := fmt.Sprintf("[%s] %s", resp.Level, resp.Message)
			switch resp.Level {
			case types.LevelError:
				b.WriteString(ErrorStyle.Render(line))
			case types.LevelWarn:
				b.WriteString(WarningStyle.Render(line))
			default:
				b.WriteString(ValueStyle.Render(line))
			}
			b.WriteString("\n")
		}
	}

	help := "Press s to request stop, q to quit"
	if m.done {
		help = "Run ended. Press q to quit"
	}
	return BoxStyle.Render(b.String()) + "\n" + HelpStyle.Render(help)
}

// Done reports whether the monitor stream closed (run ended).
func (m MonitorModel) Done() bool { return m.done }

// Status returns the last observed run status.
func (m MonitorModel) Status() types.Status { return m.status }

// RunMonitor follows a live run until its monitor stream closes.
func RunMonitor(runID, procedure string, events <-chan types.Event, stop func()) error {
	model := NewMonitorModel(runID, procedure, events, stop)
	p := tea.NewProgram(model)
	_, err := p.Run()
	return err
}
