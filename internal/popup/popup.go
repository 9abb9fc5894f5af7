// Package popup is the terminal rendition of the tab list: one row per audible
// tab with pause/resume, a volume bar and the playhead.
package popup

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/tabaudio/internal/media"
	"github.com/dgnsrekt/tabaudio/internal/reconciler"
)

const (
	volumeStep = 0.1
	seekStep   = 5.0
	barWidth   = 10
	titleWidth = 40
)

// Styles
var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("8"))
	playingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	pausedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Controller is the reconciler surface the popup drives.
type Controller interface {
	Refresh(ctx context.Context) ([]reconciler.TabView, error)
	Snapshot() []reconciler.TabView
	Toggle(ctx context.Context, id int64) (reconciler.TabView, error)
	SetVolume(ctx context.Context, id int64, v float64) (reconciler.TabView, error)
	Seek(ctx context.Context, id int64, t float64) (reconciler.TabView, error)
	SyncState(ctx context.Context, id int64) (reconciler.TabView, error)
}

// messages
type refreshedMsg struct{ err error }

type actionMsg struct {
	action string
	tabID  int64
	err    error
}

type syncedMsg struct{}

type tickMsg struct{}

// Popup runs the interactive tab list.
type Popup struct {
	Controller   Controller
	TickInterval time.Duration // 0 disables playhead refresh
}

type model struct {
	ctl  Controller
	ctx  context.Context
	tick time.Duration

	tabs    []reconciler.TabView
	cursor  int
	loading bool
	syncing bool
	stale   bool // rows predate a failed directory query
	message string
	isError bool
	width   int

	keys keyMap
	help help.Model
}

func newModel(ctx context.Context, ctl Controller, tick time.Duration) *model {
	return &model{
		ctl:  ctl,
		ctx:  ctx,
		tick: tick,
		keys: defaultKeyMap(),
		help: help.New(),
	}
}

func (p *Popup) Run(ctx context.Context) error {
	m := newModel(ctx, p.Controller, p.TickInterval)
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func (m *model) Init() tea.Cmd {
	m.loading = true
	return tea.Batch(m.doRefresh(), m.scheduleTick())
}

func (m *model) scheduleTick() tea.Cmd {
	if m.tick <= 0 {
		return nil
	}
	return tea.Tick(m.tick, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m *model) doRefresh() tea.Cmd {
	ctl, ctx := m.ctl, m.ctx
	return func() tea.Msg {
		_, err := ctl.Refresh(ctx)
		return refreshedMsg{err: err}
	}
}

// doAction runs one reconciler call off the UI loop.
func (m *model) doAction(action string, id int64, fn func(ctx context.Context) (reconciler.TabView, error)) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		_, err := fn(ctx)
		return actionMsg{action: action, tabID: id, err: err}
	}
}

// doSync reads state back for every playing tab so the playhead advances.
func (m *model) doSync() tea.Cmd {
	ctl, ctx := m.ctl, m.ctx
	var ids []int64
	for _, t := range m.tabs {
		if t.Playing {
			ids = append(ids, t.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return func() tea.Msg {
		for _, id := range ids {
			if _, err := ctl.SyncState(ctx, id); err != nil {
				slog.Debug("popup sync failed", "tab_id", id, "error", err)
			}
		}
		return syncedMsg{}
	}
}

func (m *model) selected() (reconciler.TabView, bool) {
	if m.cursor < 0 || m.cursor >= len(m.tabs) {
		return reconciler.TabView{}, false
	}
	return m.tabs[m.cursor], true
}

func (m *model) reload() {
	m.tabs = m.ctl.Snapshot()
	if m.cursor >= len(m.tabs) {
		m.cursor = max(len(m.tabs)-1, 0)
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case refreshedMsg:
		m.loading = false
		if msg.err != nil {
			slog.Warn("popup refresh failed", "error", msg.err)
			m.setError("Cannot query browser tabs: %v", msg.err)
			m.stale = len(m.tabs) > 0
			return m, nil
		}
		m.stale = false
		m.message = ""
		m.reload()
		return m, nil

	case actionMsg:
		if msg.err != nil {
			slog.Warn("popup action failed", "action", msg.action, "tab_id", msg.tabID, "error", msg.err)
			m.setError("%s failed: %v", msg.action, msg.err)
		} else {
			m.message = ""
		}
		m.reload()
		return m, nil

	case syncedMsg:
		m.syncing = false
		m.reload()
		return m, nil

	case tickMsg:
		if m.loading || m.syncing {
			return m, m.scheduleTick()
		}
		cmd := m.doSync()
		m.syncing = cmd != nil
		return m, tea.Batch(cmd, m.scheduleTick())
	}
	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Refresh):
		m.loading = true
		return m, m.doRefresh()
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.tabs)-1 {
			m.cursor++
		}
		return m, nil
	}

	tab, ok := m.selected()
	if !ok {
		return m, nil
	}
	id := tab.ID
	switch {
	case key.Matches(msg, m.keys.Toggle):
		return m, m.doAction("toggle", id, func(ctx context.Context) (reconciler.TabView, error) {
			return m.ctl.Toggle(ctx, id)
		})
	case key.Matches(msg, m.keys.VolumeUp), key.Matches(msg, m.keys.VolumeDown):
		step := volumeStep
		if key.Matches(msg, m.keys.VolumeDown) {
			step = -volumeStep
		}
		v := math.Round((tab.Volume+step)*100) / 100
		v = math.Min(math.Max(v, 0), 1)
		if v == tab.Volume {
			return m, nil
		}
		return m, m.doAction("volume", id, func(ctx context.Context) (reconciler.TabView, error) {
			return m.ctl.SetVolume(ctx, id, v)
		})
	case key.Matches(msg, m.keys.SeekBack), key.Matches(msg, m.keys.SeekFwd):
		step := seekStep
		if key.Matches(msg, m.keys.SeekBack) {
			step = -seekStep
		}
		t := media.Seconds(tab.CurrentTime) + step
		if d := media.Seconds(tab.Duration); d > 0 {
			t = math.Min(t, d)
		}
		t = math.Max(t, 0)
		return m, m.doAction("seek", id, func(ctx context.Context) (reconciler.TabView, error) {
			return m.ctl.Seek(ctx, id, t)
		})
	}
	return m, nil
}

func (m *model) setError(format string, args ...any) {
	m.message = fmt.Sprintf(format, args...)
	m.isError = true
}

func (m *model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Audible tabs (%d)", len(m.tabs))))
	if m.stale {
		b.WriteString(" " + errorStyle.Render("stale: last query failed, press r to retry"))
	}
	b.WriteString("\n\n")

	switch {
	case m.loading && len(m.tabs) == 0:
		b.WriteString(dimStyle.Render("Looking for tabs playing audio..."))
		b.WriteString("\n")
	case len(m.tabs) == 0:
		b.WriteString(dimStyle.Render("No tabs are playing audio."))
		b.WriteString("\n")
	}

	for i, t := range m.tabs {
		row := renderRow(t)
		if m.stale {
			row = dimStyle.Render(row)
		}
		if i == m.cursor {
			row = selectedStyle.Render("> " + row)
		} else {
			row = "  " + row
		}
		b.WriteString(row)
		b.WriteString("\n")
	}

	if m.message != "" {
		b.WriteString("\n")
		if m.isError {
			b.WriteString(errorStyle.Render(m.message))
		} else {
			b.WriteString(dimStyle.Render(m.message))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func renderRow(t reconciler.TabView) string {
	button := playingStyle.Render("Pause ")
	if !t.Playing {
		button = pausedStyle.Render("Resume")
	}
	return fmt.Sprintf("%s  %s  %s  %s  %s",
		button,
		padRight(truncate(t.Title, titleWidth), titleWidth),
		dimStyle.Render(padRight(hostOf(t.URL), 20)),
		volumeBar(t.Volume),
		playhead(t),
	)
}

// volumeBar renders v in [0,1] as a fixed-width bar with a percentage.
func volumeBar(v float64) string {
	filled := int(math.Round(v * barWidth))
	filled = min(max(filled, 0), barWidth)
	return fmt.Sprintf("[%s%s] %3d%%", strings.Repeat("█", filled), strings.Repeat("░", barWidth-filled), int(math.Round(v*100)))
}

// playhead shows unknown time or duration as zero.
func playhead(t reconciler.TabView) string {
	return media.FormatClock(media.Seconds(t.CurrentTime)) + " / " + media.FormatClock(media.Seconds(t.Duration))
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func padRight(s string, n int) string {
	w := lipgloss.Width(s)
	if w >= n {
		return s
	}
	return s + strings.Repeat(" ", n-w)
}
