package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	xterm "golang.org/x/term"

	"github.com/wippyai/realm-runtime/realm"
	"github.com/wippyai/realm-runtime/term"
	"github.com/wippyai/realm-runtime/wasmcode"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB")).
			Width(12)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	exitStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const (
	refreshInterval = 250 * time.Millisecond
	eventBacklog    = 12
)

type monitorModel struct {
	err    error
	ctx    context.Context
	r      *realm.Realm
	eng    *wasmcode.Engine
	guest  *wasmcode.Module
	events chan realm.Event
	opts   options
	recent []realm.Event
	result string
	input  textinput.Model
	stats  realm.Stats
	rate   float64
	last   time.Time
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func newMonitorModel(ctx context.Context, r *realm.Realm, o options) *monitorModel {
	ti := textinput.New()
	ti.Placeholder = "ring 100 10 | kill <pid> | info <pid> | guest"
	ti.Prompt = "> "
	ti.Width = 60
	ti.Focus()

	m := &monitorModel{
		ctx:    ctx,
		r:      r,
		events: make(chan realm.Event, 1024),
		opts:   o,
		input:  ti,
		last:   time.Now(),
	}
	r.Subscribe(realm.ObserverFunc(func(e realm.Event) {
		select {
		case m.events <- e:
		default:
		}
	}))
	return m
}

func (m *monitorModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick())
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "quit" || line == "q" {
				return m, tea.Quit
			}
			m.result, m.err = m.execute(line)
			return m, nil
		}

	case tickMsg:
		m.refresh(time.Time(msg))
		return m, tick()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *monitorModel) refresh(now time.Time) {
	st := m.r.Stats()
	if dt := now.Sub(m.last).Seconds(); dt > 0 {
		m.rate = float64(st.Slices-m.stats.Slices) / dt
	}
	m.stats, m.last = st, now

	for {
		select {
		case e := <-m.events:
			m.recent = append(m.recent, e)
		default:
			if n := len(m.recent); n > eventBacklog {
				m.recent = append(m.recent[:0], m.recent[n-eventBacklog:]...)
			}
			return
		}
	}
}

func (m *monitorModel) execute(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	args := make([]int, 0, len(fields)-1)
	for _, f := range fields[1:] {
		n, err := strconv.Atoi(f)
		if err != nil {
			return "", fmt.Errorf("%q is not a number", f)
		}
		args = append(args, n)
	}
	arg := func(i, def int) int {
		if i < len(args) {
			return args[i]
		}
		return def
	}

	switch fields[0] {
	case "ring":
		n, rounds := arg(0, 100), arg(1, 10)
		if n < 1 || rounds < 1 {
			return "", fmt.Errorf("ring needs positive size and rounds")
		}
		pids, err := ring(m.r, n, rounds, m.opts.payload, realm.PriorityNormal)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("ring of %d started at %v", len(pids), pids[0]), nil

	case "kill":
		if len(args) != 1 {
			return "", fmt.Errorf("usage: kill <pid>")
		}
		pid := term.PID(args[0])
		if err := m.r.Exit(pid, term.Keyword("kill")); err != nil {
			return "", err
		}
		return fmt.Sprintf("kill sent to %v", pid), nil

	case "info":
		if len(args) != 1 {
			return "", fmt.Errorf("usage: info <pid>")
		}
		info, err := m.r.ProcessInfo(term.PID(args[0]))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%v %v prio=%v reductions=%d slices=%d heap=%dw gcs=%d msgs=%d links=%v",
			info.PID, info.Status, info.Priority, info.Reductions, info.Slices,
			info.HeapWords, info.Collections, info.Messages, info.Links), nil

	case "guest":
		if m.opts.wasm == "" {
			return "", fmt.Errorf("no guest loaded, start with -wasm")
		}
		pids, err := m.spawnGuests(arg(0, 1))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d guests spawned", len(pids)), nil
	}
	return "", fmt.Errorf("unknown command %q", fields[0])
}

func (m *monitorModel) spawnGuests(n int) ([]term.PID, error) {
	if m.eng == nil {
		eng, err := wasmcode.NewEngine(m.ctx, wasmcode.Config{})
		if err != nil {
			return nil, err
		}
		m.eng = eng
	}
	return guests(m.ctx, m.eng, m.r, m.opts.wasm, n)
}

func (m *monitorModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Realm Monitor"))
	b.WriteString(fmt.Sprintf(" %d workers\n\n", m.stats.Workers))

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}
	row("processes", strconv.Itoa(m.stats.Processes))
	row("spawned", strconv.FormatInt(m.stats.Spawned, 10))
	row("exited", strconv.FormatInt(m.stats.Exited, 10))
	row("slices/s", fmt.Sprintf("%.0f", m.rate))
	row("steals", strconv.FormatInt(m.stats.Steals, 10))
	row("global q", strconv.Itoa(m.stats.GlobalQueue))
	row("binaries", fmt.Sprintf("%d (%d bytes)", m.stats.Binaries, m.stats.BinaryBytes))
	if m.eng != nil {
		row("guests", strconv.FormatInt(m.eng.Instances(), 10))
	}

	b.WriteString("\n")
	for _, e := range m.recent {
		switch e.Type {
		case realm.EventSpawned:
			b.WriteString(fmt.Sprintf("  spawned %v\n", e.PID))
		case realm.EventExited:
			line := fmt.Sprintf("  exited  %v %s", e.PID, term.Format(e.Reason))
			if !term.IsNormal(e.Reason) {
				line = exitStyle.Render(line)
			}
			b.WriteString(line + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	case m.result != "":
		b.WriteString(resultStyle.Render(m.result))
	}
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter run command • esc quit"))
	return b.String()
}

func runInteractive(o options, log *zap.Logger) error {
	if !xterm.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	r, err := realm.New(cfg, realm.WithLogger(log))
	if err != nil {
		return err
	}
	if err := r.Start(ctx); err != nil {
		return err
	}

	m := newMonitorModel(ctx, r, o)
	if _, err := ring(r, o.procs, o.rounds, o.payload, realm.PriorityNormal); err != nil {
		_ = r.Shutdown(ctx)
		return err
	}

	_, runErr := tea.NewProgram(m, tea.WithAltScreen()).Run()
	err = r.Shutdown(context.Background())
	if m.eng != nil {
		_ = m.eng.Close(context.Background())
	}
	if runErr != nil {
		return runErr
	}
	return err
}
