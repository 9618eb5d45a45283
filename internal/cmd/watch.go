package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/roomshare/browserd/internal/api"
	"github.com/roomshare/browserd/internal/queue"
	"github.com/roomshare/browserd/internal/session"
	"github.com/roomshare/browserd/internal/util"
)

const watchPollInterval = 2 * time.Second

var (
	watchTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	watchHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	watchDimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	watchErrStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	watchOKStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	watchWarnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// watchSnapshot is one poll of the daemon's read endpoints.
type watchSnapshot struct {
	status   api.StatusResponse
	sessions []session.Session
	entries  []queue.Entry
	err      error
}

type watchTickMsg time.Time

// watchModel is the full-screen status monitor.
type watchModel struct {
	client  *daemonClient
	spinner spinner.Model
	snap    watchSnapshot
	loaded  bool
}

// runWatch runs the status monitor until the user quits.
func runWatch(client *daemonClient) error {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := watchModel{client: client, spinner: sp}
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll(), watchTick())
}

func (m watchModel) poll() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		snap := watchSnapshot{}
		snap.status, snap.err = client.Status()
		if snap.err != nil {
			return snap
		}
		if snap.sessions, snap.err = client.Sessions(); snap.err != nil {
			return snap
		}
		snap.entries, snap.err = client.Queue()
		return snap
	}
}

func watchTick() tea.Cmd {
	return tea.Tick(watchPollInterval, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	case watchTickMsg:
		return m, tea.Batch(m.poll(), watchTick())
	case watchSnapshot:
		m.snap = msg
		m.loaded = true
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder

	b.WriteString(watchTitleStyle.Render("browserd"))
	b.WriteString(watchDimStyle.Render("  " + m.client.baseURL))
	b.WriteString("\n\n")

	if !m.loaded {
		b.WriteString(m.spinner.View() + " connecting...\n")
		return b.String()
	}
	if m.snap.err != nil {
		b.WriteString(watchErrStyle.Render("error: "+m.snap.err.Error()) + "\n")
		b.WriteString(watchDimStyle.Render("retrying every " + watchPollInterval.String()))
		return b.String()
	}

	st := m.snap.status
	b.WriteString(watchHeaderStyle.Render("Pool") + "\n")
	b.WriteString(fmt.Sprintf("  %s  %s  %s",
		watchOKStyle.Render(fmt.Sprintf("%d available", st.Pool.Available)),
		fmt.Sprintf("%d allocated", st.Pool.Allocated),
		watchDimStyle.Render(fmt.Sprintf("of %d", st.Pool.Total))))
	if st.Pool.Unhealthy > 0 {
		b.WriteString("  " + watchWarnStyle.Render(fmt.Sprintf("%d unhealthy", st.Pool.Unhealthy)))
	}
	b.WriteString("\n\n")

	b.WriteString(watchHeaderStyle.Render("Sessions") + "\n")
	if len(m.snap.sessions) == 0 {
		b.WriteString(watchDimStyle.Render("  none") + "\n")
	}
	for _, s := range m.snap.sessions {
		remaining := time.Until(s.ExpiresAt).Round(time.Second)
		b.WriteString(fmt.Sprintf("  slot %d  %s  %s  %s\n",
			s.SlotIndex, s.RoomID, s.Status,
			watchDimStyle.Render("expires in "+remaining.String())))
		if s.LastURL != "" {
			b.WriteString(util.TruncateANSI(watchDimStyle.Render("      "+s.LastURL), 72) + "\n")
		}
	}
	b.WriteString("\n")

	b.WriteString(watchHeaderStyle.Render("Queue") + "\n")
	if len(m.snap.entries) == 0 {
		b.WriteString(watchDimStyle.Render("  empty") + "\n")
	}
	for i, e := range m.snap.entries {
		line := fmt.Sprintf("  %d. %s  %s", i+1, e.RoomID, e.State)
		if e.State == queue.StateNotified && e.Deadline != nil {
			line += watchWarnStyle.Render("  offer expires " + time.Until(*e.Deadline).Round(time.Second).String())
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n" + watchDimStyle.Render("q to quit"))
	return b.String()
}
