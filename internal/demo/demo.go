package demo

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"nros/internal/bus"
	"nros/internal/config"
	"nros/internal/logging"
)

// Demo is implemented by concrete demo applications. The shell owns the bus
// connection and the terminal; the demo owns the client area and its
// subscriptions.
type Demo interface {
	// Title is shown in the shell's title bar.
	Title() string

	// Setup connects the demo to the bus: subscribe to topics, resolve
	// service callers. Runs once, after the terminal is up.
	Setup(app *App) error

	// View renders the client area.
	View() string

	// Teardown releases what Setup acquired.
	Teardown() error
}

// KeyHandler is implemented by demos that react to key presses. The shell
// consumes 'q' and ctrl+c; everything else is forwarded here.
type KeyHandler interface {
	HandleKey(key string)
}

// Options select the bus and the peer node of a demo run.
type Options struct {
	// Node is the peer node name, usually from the -n flag.
	Node string

	// BusAddress connects to an explicit D-Bus address.
	BusAddress string

	// RemoteHost and RemotePort connect over TCP to a remote bus.
	RemoteHost string
	RemotePort int

	// StateDir overrides where the local bus address is looked up.
	StateDir string
}

// App is the demo's handle on the running shell.
type App struct {
	opts    Options
	conn    *bus.Conn
	program *tea.Program
}

// Conn returns the bus connection the shell opened.
func (a *App) Conn() *bus.Conn { return a.conn }

// Node returns the peer node name selected on the command line.
func (a *App) Node() string { return a.opts.Node }

// Refresh asks the shell to redraw the client area. Call it from subscriber
// goroutines after updating demo state.
func (a *App) Refresh() { a.send(refreshMsg{}) }

// Infof puts an informational message on the status line.
func (a *App) Infof(format string, args ...any) {
	a.setStatus(statusInfo, format, args...)
}

// Successf puts a success message on the status line.
func (a *App) Successf(format string, args ...any) {
	a.setStatus(statusSuccess, format, args...)
}

// Errorf puts an error message on the status line.
func (a *App) Errorf(format string, args ...any) {
	a.setStatus(statusError, format, args...)
}

func (a *App) setStatus(kind statusKind, format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	logging.Demo("status [%s] %s", kind, text)
	a.send(statusMsg{kind: kind, text: text})
}

func (a *App) send(msg tea.Msg) {
	if a.program != nil {
		a.program.Send(msg)
	}
}

type statusKind string

const (
	statusInfo    statusKind = "info"
	statusSuccess statusKind = "success"
	statusError   statusKind = "error"
)

type statusMsg struct {
	kind statusKind
	text string
}

// refreshMsg triggers a redraw without changing shell state.
type refreshMsg struct{}

type setupDoneMsg struct{ err error }

type model struct {
	demo   Demo
	app    *App
	styles Styles
	status statusMsg
	spin   spinner.Model
	ready  bool
	width  int
}

func newModel(d Demo, app *App) model {
	styles := DefaultStyles()
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = styles.Info
	return model{
		demo:   d,
		app:    app,
		styles: styles,
		spin:   spin,
		status: statusMsg{kind: statusInfo, text: "connecting..."},
	}
}

func (m model) Init() tea.Cmd {
	setup := func() tea.Msg {
		return setupDoneMsg{err: m.demo.Setup(m.app)}
	}
	return tea.Batch(m.spin.Tick, setup)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		if h, ok := m.demo.(KeyHandler); ok {
			h.HandleKey(msg.String())
		}
		return m, nil

	case setupDoneMsg:
		m.ready = true
		if msg.err != nil {
			logging.Demo("setup failed: %v", msg.err)
			m.status = statusMsg{kind: statusError, text: msg.err.Error()}
		} else {
			m.status = statusMsg{kind: statusSuccess, text: "connected"}
		}
		return m, nil

	case spinner.TickMsg:
		if m.ready {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case statusMsg:
		m.status = msg
		return m, nil

	case refreshMsg:
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render(m.demo.Title()))
	b.WriteString("\n")
	b.WriteString(m.styles.Frame.Render(m.demo.View()))
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.styles.Help.Render("press q to quit"))
	return b.String()
}

func (m model) statusLine() string {
	var style lipgloss.Style
	switch m.status.kind {
	case statusError:
		style = m.styles.Error
	case statusSuccess:
		style = m.styles.Success
	default:
		style = m.styles.Info
	}
	if !m.ready {
		return m.spin.View() + style.Render(m.status.text)
	}
	return style.Render(m.status.text)
}

// Run connects to the bus, drives the demo until the user quits, then tears
// everything down.
func Run(d Demo, opts Options) error {
	conn, err := dial(opts)
	if err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}
	defer conn.Close()

	app := &App{opts: opts, conn: conn}
	p := tea.NewProgram(newModel(d, app), tea.WithAltScreen())
	app.program = p

	logging.Demo("demo %q starting (node=%q remote=%q)", d.Title(), opts.Node, opts.RemoteHost)
	_, runErr := p.Run()

	if err := d.Teardown(); err != nil {
		logging.Demo("teardown: %v", err)
		if runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func dial(opts Options) (*bus.Conn, error) {
	switch {
	case opts.RemoteHost != "":
		return bus.Remote(opts.RemoteHost, opts.RemotePort)
	case opts.BusAddress != "":
		return bus.Connect(opts.BusAddress)
	default:
		dir := opts.StateDir
		if dir == "" {
			dir = config.StateDir()
		}
		return bus.Session(dir)
	}
}
