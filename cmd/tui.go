// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Thermoquad/rotelstat/pkg/rotel"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

type monitorModel struct {
	streamURL     string
	commandAddr   string
	snap          *rotel.Snapshot
	stats         rotel.StatsSnapshot
	hasStats      bool
	eventLog      []logEntry
	maxLogEntries int
	input         textinput.Model
	connLost      bool
	width         int
	height        int
	quitting      bool
}

// Messages
type monitorTickMsg time.Time
type stateMsg struct {
	snap rotel.Snapshot
}
type statsMsg struct {
	stats rotel.StatsSnapshot
}
type connectionLostMsg struct{}
type reconnectedMsg struct{}
type replyMsg struct {
	line  string
	reply string
	err   error
}

// formatUptime formats a duration as a human-friendly string
func formatUptime(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0 seconds"
	}

	units := []struct {
		name string
		size int64
	}{
		{"day", 86400},
		{"hour", 3600},
		{"minute", 60},
		{"second", 1},
	}

	parts := []string{}
	for _, u := range units {
		n := seconds / u.size
		seconds %= u.size
		if n == 0 {
			continue
		}
		if n == 1 {
			parts = append(parts, "1 "+u.name)
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}

	if len(parts) == 1 {
		return parts[0]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + " and " + last
}

// describeChanges lists what differs between two snapshots, for the log
func describeChanges(old, cur rotel.Snapshot) []string {
	var changes []string
	if old.Power != cur.Power {
		changes = append(changes, "Power "+cur.Power)
	}
	if old.Source != cur.Source {
		changes = append(changes, "Source "+cur.Source)
	}
	if old.VolumeRaw != cur.VolumeRaw {
		changes = append(changes, fmt.Sprintf("Volume %d (%.1f%%)", cur.VolumeRaw, cur.Volume))
	}
	if old.VolumeLimit != cur.VolumeLimit {
		changes = append(changes, fmt.Sprintf("Limit %d", cur.VolumeLimit))
	}
	if old.Mute != cur.Mute {
		changes = append(changes, fmt.Sprintf("Mute %t", cur.Mute))
	}
	if old.Speakers != cur.Speakers {
		changes = append(changes, "Speakers "+cur.Speakers)
	}
	if old.Frequency != cur.Frequency {
		if cur.Frequency == 0 {
			changes = append(changes, "No digital signal")
		} else {
			changes = append(changes, fmt.Sprintf("Frequency %.1f kHz", float64(cur.Frequency)/1000))
		}
	}
	if old.Display != cur.Display {
		changes = append(changes, fmt.Sprintf("Display |%s|%s|", cur.Display.Line1, cur.Display.Line2))
	}
	if len(old.Pending) != len(cur.Pending) {
		changes = append(changes, "Pending "+formatPending(cur.Pending))
	}
	return changes
}

func formatPending(p map[string]string) string {
	if len(p) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + p[k]
	}
	return strings.Join(parts, " ")
}

func initialMonitorModel(streamURL, commandAddr string) monitorModel {
	ti := textinput.New()
	ti.Placeholder = "vol 0.4"
	ti.Prompt = "> "
	ti.CharLimit = 64
	ti.Width = 40
	ti.Focus()

	return monitorModel{
		streamURL:     streamURL,
		commandAddr:   commandAddr,
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		input:         ti,
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(monitorTickCmd(), textinput.Blink)
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func sendCommandCmd(addr, line string) tea.Cmd {
	return func() tea.Msg {
		reply, err := exchange(context.Background(), addr, line, 3*time.Second)
		return replyMsg{line: line, reply: reply, err: err}
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				return m, nil
			}
			return m, sendCommandCmd(m.commandAddr, line)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		return m, monitorTickCmd()

	case stateMsg:
		if m.snap == nil {
			m.addLogEntry(fmt.Sprintf("State received: power %s", msg.snap.Power), false)
		} else {
			for _, c := range describeChanges(*m.snap, msg.snap) {
				m.addLogEntry(c, false)
			}
		}
		snap := msg.snap
		m.snap = &snap

	case statsMsg:
		m.stats = msg.stats
		m.hasStats = true

	case replyMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s: %v", msg.line, msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("%s -> %q", msg.line, msg.reply), false)
		}

	case connectionLostMsg:
		m.connLost = true
		m.addLogEntry("Connection lost - reconnecting...", true)

	case reconnectedMsg:
		m.connLost = false
		m.addLogEntry("Reconnected", false)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m monitorModel) View() string {
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

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("ROTELSTAT MONITOR"))
	s.WriteString(" ")
	status := m.streamURL
	if m.connLost {
		status = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | commands to %s | Esc=quit", status, m.commandAddr)))
	s.WriteString("\n\n")

	if m.snap == nil {
		s.WriteString(warningStyle.Render("Waiting for state..."))
		s.WriteString("\n\n")
	} else {
		s.WriteString(boxStyle.Render(m.renderState(labelStyle, valueStyle, errorStyle, headerStyle)))
		s.WriteString("\n")
	}

	if m.hasStats {
		s.WriteString(headerStyle.Render(fmt.Sprintf(" Link: %d frames in, %d commands out, %d display updates, up %s",
			m.stats.MessagesReceived, m.stats.MessagesSent, m.stats.DisplayUpdates, formatUptime(time.Duration(m.stats.UptimeSeconds*float64(time.Second))))))
		if m.stats.SendErrors > 0 {
			s.WriteString(" ")
			s.WriteString(errorStyle.Render(fmt.Sprintf("%d send errors", m.stats.SendErrors)))
		}
		s.WriteString("\n")
	}
	s.WriteString("\n")

	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 18
	if logHeight < 5 {
		logHeight = 5
	}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	var logContent strings.Builder
	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, entry := range m.eventLog[startIdx:] {
		timestamp := entry.timestamp.Format("15:04:05.000")
		if entry.isError {
			logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
		} else {
			logContent.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), warningStyle.Render("ℹ "+entry.message)))
		}
	}
	width := m.width - 4
	if width < 20 {
		width = 20
	}
	s.WriteString(boxStyle.Width(width).Render(logContent.String()))
	s.WriteString("\n")
	s.WriteString(m.input.View())

	return s.String()
}

func (m monitorModel) renderState(labelStyle, valueStyle, errorStyle, headerStyle lipgloss.Style) string {
	snap := m.snap
	var b strings.Builder

	power := valueStyle.Render(snap.Power)
	if !snap.IsOn() {
		power = errorStyle.Render(snap.Power)
	}
	b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Power:"), power,
		labelStyle.Render("Source:"), valueStyle.Render(snap.Source),
		labelStyle.Render("Speakers:"), valueStyle.Render(snap.Speakers),
	))

	mute := ""
	if snap.Mute {
		mute = " " + errorStyle.Render("MUTED")
	}
	b.WriteString(fmt.Sprintf("%s %s %s%s\n",
		labelStyle.Render("Volume:"),
		valueStyle.Render(fmt.Sprintf("%.1f%%", snap.Volume)),
		headerStyle.Render(fmt.Sprintf("(raw %d, range %d-%d, limit %d)", snap.VolumeRaw, snap.VolumeMin, snap.VolumeMax, snap.VolumeLimit)),
		mute,
	))

	signal := "none"
	if snap.Frequency > 0 {
		signal = fmt.Sprintf("%.1f kHz", float64(snap.Frequency)/1000)
	} else if snap.Signal {
		signal = "analog"
	}
	b.WriteString(fmt.Sprintf("%s %s   %s %t\n",
		labelStyle.Render("Signal:"), valueStyle.Render(signal),
		labelStyle.Render("Inactive:"), snap.Inactive,
	))

	if snap.Display.Line1 != "" || snap.Display.Line2 != "" {
		b.WriteString(fmt.Sprintf("%s |%s|%s|\n", labelStyle.Render("Display:"), snap.Display.Line1, snap.Display.Line2))
	}
	b.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Pending:"), headerStyle.Render(formatPending(snap.Pending))))
	return b.String()
}
