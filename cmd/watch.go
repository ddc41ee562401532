// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/xpbus/conbus/pkg/conbus"
	"github.com/xpbus/conbus/pkg/gateway"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Full-screen live view of the bus",
	Long: `Interactive full-screen view of the bus: a scrolling telegram log,
frame statistics, and the set of modules seen so far.

Keys:
  q / ctrl+c   quit
  up / down    scroll the log`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// Log entry
type watchLogEntry struct {
	timestamp time.Time
	line      string
	bad       bool
}

// Messages
type busEventMsg gateway.Event
type watchTickMsg time.Time

// Per-module liveness
type moduleActivity struct {
	lastSeen time.Time
	frames   int
}

// TUI model
type watchModel struct {
	connInfo string

	log           []watchLogEntry
	maxLogEntries int
	viewport      viewport.Model
	modules       map[string]*moduleActivity

	totalFrames int
	validFrames int
	badFrames   int
	events      int
	timeouts    int

	width    int
	height   int
	quitting bool
}

func initialWatchModel(connInfo string) watchModel {
	vp := viewport.New(80, 16)
	return watchModel{
		connInfo:      connInfo,
		maxLogEntries: 500,
		viewport:      vp,
		modules:       make(map[string]*moduleActivity),
		width:         80,
		height:        24,
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		watchTickCmd(),
		tea.EnterAltScreen,
	)
}

func watchTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return watchTickMsg(t)
	})
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width - 4
		if msg.Height > 12 {
			m.viewport.Height = msg.Height - 10
		}

	case watchTickMsg:
		// Redraw so the last-seen ages tick along.
		return m, watchTickCmd()

	case busEventMsg:
		m.applyEvent(gateway.Event(msg))
		m.viewport.SetContent(m.renderLog())
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *watchModel) applyEvent(ev gateway.Event) {
	switch ev.Kind {
	case gateway.EventReceived:
		m.totalFrames++
		if ev.Valid {
			m.validFrames++
		} else {
			m.badFrames++
		}
		if ev.Telegram.Kind == conbus.KindEvent {
			m.events++
		}
		if serial := ev.Telegram.SerialNumber(); serial != "" {
			act := m.modules[serial]
			if act == nil {
				act = &moduleActivity{}
				m.modules[serial] = act
			}
			act.lastSeen = time.Now()
			act.frames++
		}
		m.addLogEntry("<< "+conbus.FormatTelegram(ev.Telegram), !ev.Valid)

	case gateway.EventSent:
		m.addLogEntry(">> "+conbus.FormatTelegram(ev.Telegram), false)

	case gateway.EventTimeout:
		m.timeouts++

	case gateway.EventFailed:
		m.addLogEntry(fmt.Sprintf("!! connection failed: %v", ev.Err), true)
	}
}

func (m *watchModel) addLogEntry(line string, bad bool) {
	m.log = append(m.log, watchLogEntry{timestamp: time.Now(), line: line, bad: bad})
	if len(m.log) > m.maxLogEntries {
		m.log = m.log[len(m.log)-m.maxLogEntries:]
	}
}

func (m *watchModel) renderLog() string {
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	var s strings.Builder
	for _, e := range m.log {
		line := fmt.Sprintf("[%s] %s", e.timestamp.Format("15:04:05.000"), e.line)
		if e.bad {
			line = errorStyle.Render(line)
		}
		s.WriteString(line)
		s.WriteString("\n")
	}
	return s.String()
}

func (m watchModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("CONBUS - BUS WATCH"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("Connection: %s | Press 'q' to quit", m.connInfo)))
	s.WriteString("\n\n")

	s.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", m.totalFrames)),
		statsLabelStyle.Render("Bad:"), errorStyle.Render(fmt.Sprintf("%d", m.badFrames)),
		statsLabelStyle.Render("Events:"), statsValueStyle.Render(fmt.Sprintf("%d", m.events)),
		statsLabelStyle.Render("Quiet windows:"), statsValueStyle.Render(fmt.Sprintf("%d", m.timeouts)),
	))

	// Modules, most recently seen first
	serials := make([]string, 0, len(m.modules))
	for serial := range m.modules {
		serials = append(serials, serial)
	}
	sort.Slice(serials, func(i, j int) bool {
		return m.modules[serials[i]].lastSeen.After(m.modules[serials[j]].lastSeen)
	})
	var mods strings.Builder
	for _, serial := range serials {
		act := m.modules[serial]
		mods.WriteString(fmt.Sprintf("%s  %4d frames  seen %s ago\n",
			serial, act.frames, time.Since(act.lastSeen).Round(time.Second)))
	}
	if mods.Len() == 0 {
		mods.WriteString("no modules seen yet\n")
	}
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(strings.TrimRight(mods.String(), "\n")))
	s.WriteString("\n\n")
	s.WriteString(boxStyle.Render(m.viewport.View()))
	s.WriteString("\n")

	return s.String()
}

func runWatch(cmd *cobra.Command, args []string) error {
	client, connInfo, err := openClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()

	p := tea.NewProgram(initialWatchModel(connInfo), tea.WithAltScreen())

	id := client.Subscribe(func(ev gateway.Event) {
		p.Send(busEventMsg(ev))
	})
	defer client.Unsubscribe(id)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
