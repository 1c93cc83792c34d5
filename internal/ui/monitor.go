package ui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rotelhex/rotelhex/internal/display"
)

// DefaultMonitorTimeout bounds each command sent from the monitor
const DefaultMonitorTimeout = 5 * time.Second

// Controller is what the monitor needs from a connected receiver
type Controller interface {
	Display() *display.State
	SendNamed(ctx context.Context, name string) error
	SetSource(ctx context.Context, fn string) error
	BasicSources() []string
}

// Message types
type (
	displayMsg display.Update

	sentMsg struct {
		what string
		err  error
	}
)

type monitorKeyMap struct {
	Power      key.Binding
	VolumeUp   key.Binding
	VolumeDown key.Binding
	Mute       key.Binding
	NextSource key.Binding
	PrevSource key.Binding
	Display    key.Binding
	Help       key.Binding
	Quit       key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k monitorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Power, k.NextSource, k.VolumeUp, k.VolumeDown, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k monitorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Power, k.Mute, k.Display},
		{k.NextSource, k.PrevSource},
		{k.VolumeUp, k.VolumeDown},
		{k.Help, k.Quit},
	}
}

func defaultMonitorKeys() monitorKeyMap {
	return monitorKeyMap{
		Power: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "power"),
		),
		VolumeUp: key.NewBinding(
			key.WithKeys("+", "=", "up"),
			key.WithHelp("+/↑", "volume up"),
		),
		VolumeDown: key.NewBinding(
			key.WithKeys("-", "down"),
			key.WithHelp("-/↓", "volume down"),
		),
		Mute: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "mute"),
		),
		NextSource: key.NewBinding(
			key.WithKeys("tab", "right", "s"),
			key.WithHelp("tab/→", "next source"),
		),
		PrevSource: key.NewBinding(
			key.WithKeys("shift+tab", "left", "S"),
			key.WithHelp("shift+tab/←", "previous source"),
		),
		Display: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "display mode"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more keys"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c", "esc"),
			key.WithHelp("q", "quit"),
		),
	}
}

// MonitorModel is an interactive view of the live front panel
type MonitorModel struct {
	ctrl    Controller
	timeout time.Duration

	updates     chan display.Update
	done        chan struct{}
	unsubscribe func()
	stop        *sync.Once

	snapshot display.Snapshot
	sources  []string
	pending  int
	status   string
	lastErr  error
	width    int

	spinner spinner.Model
	help    help.Model
	keys    monitorKeyMap
}

// NewMonitor subscribes to ctrl's display and returns a model ready for
// tea.NewProgram. Call Close once the program has exited.
func NewMonitor(ctrl Controller) MonitorModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	m := MonitorModel{
		ctrl:     ctrl,
		timeout:  DefaultMonitorTimeout,
		updates:  make(chan display.Update, 16),
		done:     make(chan struct{}),
		stop:     &sync.Once{},
		snapshot: ctrl.Display().Snapshot(),
		sources:  ctrl.BasicSources(),
		width:    GetTerminalWidth(),
		spinner:  s,
		help:     help.New(),
		keys:     defaultMonitorKeys(),
	}

	updates, done := m.updates, m.done
	m.unsubscribe = ctrl.Display().Subscribe(display.ObserverFunc(func(u display.Update) {
		select {
		case updates <- u:
		case <-done:
		default:
			// The view re-reads the full snapshot on every update, so a
			// dropped one is caught up by the next.
		}
	}))
	return m
}

// Close detaches the monitor from the display
func (m MonitorModel) Close() {
	m.stop.Do(func() {
		m.unsubscribe()
		close(m.done)
	})
}

// Init implements tea.Model
func (m MonitorModel) Init() tea.Cmd {
	return tea.Batch(m.waitForUpdate(), m.spinner.Tick)
}

// waitForUpdate blocks until the display changes or the monitor closes
func (m MonitorModel) waitForUpdate() tea.Cmd {
	updates, done := m.updates, m.done
	return func() tea.Msg {
		select {
		case u := <-updates:
			return displayMsg(u)
		case <-done:
			return nil
		}
	}
}

// Update implements tea.Model
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = clampWidth(msg.Width)
		m.help.Width = m.width
		return m, nil

	case displayMsg:
		m.snapshot = m.ctrl.Display().Snapshot()
		return m, m.waitForUpdate()

	case sentMsg:
		m.pending--
		m.lastErr = msg.err
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed", msg.what)
		} else {
			m.status = fmt.Sprintf("sent %s", msg.what)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m MonitorModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Power):
		return m.send("power_toggle")
	case key.Matches(msg, m.keys.VolumeUp):
		return m.send("volume_up")
	case key.Matches(msg, m.keys.VolumeDown):
		return m.send("volume_down")
	case key.Matches(msg, m.keys.Mute):
		return m.send("mute_toggle")
	case key.Matches(msg, m.keys.Display):
		return m.send("display_toggle")
	case key.Matches(msg, m.keys.NextSource):
		return m.stepSource(1)
	case key.Matches(msg, m.keys.PrevSource):
		return m.stepSource(-1)
	}
	return m, nil
}

func (m MonitorModel) send(name string) (tea.Model, tea.Cmd) {
	m.pending++
	m.status = "sending " + name
	ctrl, timeout := m.ctrl, m.timeout
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return sentMsg{what: name, err: ctrl.SendNamed(ctx, name)}
	}
}

// stepSource selects the source dir steps away from the current one
func (m MonitorModel) stepSource(dir int) (tea.Model, tea.Cmd) {
	if len(m.sources) == 0 {
		return m, nil
	}
	fn := m.sources[nextIndex(m.sources, m.currentSource(), dir)]

	m.pending++
	m.status = "selecting " + fn
	ctrl, timeout := m.ctrl, m.timeout
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return sentMsg{what: "source " + fn, err: ctrl.SetSource(ctx, fn)}
	}
}

// currentSource is the function name matching the sticky source field, or ""
func (m MonitorModel) currentSource() string {
	return strings.ToLower(strings.TrimSpace(m.snapshot.BasicSource.String()))
}

// nextIndex returns the index dir steps from current in list, wrapping. An
// unknown current starts from the first (or last) entry.
func nextIndex(list []string, current string, dir int) int {
	for i, v := range list {
		if v == current {
			return (i + dir + len(list)) % len(list)
		}
	}
	if dir < 0 {
		return len(list) - 1
	}
	return 0
}

// View implements tea.Model
func (m MonitorModel) View() string {
	header := NewHeader("Receiver Monitor", "live front panel", nil).SetWidth(m.width).Render()

	status := m.status
	if m.pending > 0 {
		status = m.spinner.View() + " " + status
	}
	var statusLine string
	if m.lastErr != nil {
		statusLine = ErrorMessageStyle.PaddingLeft(2).Render(status + ": " + m.lastErr.Error())
	} else {
		statusLine = StatusLineStyle.Render(status)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		RenderPanel(m.snapshot, m.width),
		statusLine,
		HelpStyle.Render(m.help.View(m.keys)),
	)
}

// RunMonitor runs the monitor full screen until the user quits
func RunMonitor(ctrl Controller) error {
	m := NewMonitor(ctrl)
	defer m.Close()

	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
