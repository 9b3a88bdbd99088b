// Package ui is the terminal front end for a practice run.
//
// Machine calls run inside tea.Cmds, never in Update: the machine delivers
// events through Program.Send, which blocks until Update returns.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"karaoke-backend/internal/practice"
	"karaoke-backend/pkg/music"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Controller is the part of the practice machine the TUI drives.
type Controller interface {
	Start() error
	Stop()
	BeginRecording(ctx context.Context) error
	EndRecording() error
	ReviewPlayback(ctx context.Context) error
	Retry()
	Skip()
	ReplayLine()
	Play()
	Pause()
}

// Model is the root bubbletea model.
type Model struct {
	ctx   context.Context
	ctrl  Controller
	title string
	lines []string

	// 状态机镜像，只由事件更新
	phase     practice.Phase
	line      int
	current   float64
	duration  float64
	status    string
	canRecord bool
	completed bool
	playing   bool

	errorMessage string
	width        int
	height       int
}

// New 用当前快照初始化模型
func New(ctx context.Context, ctrl Controller, title string, lines []string, snap practice.Snapshot) Model {
	return Model{
		ctx:       ctx,
		ctrl:      ctrl,
		title:     title,
		lines:     lines,
		phase:     snap.Phase,
		line:      snap.Line,
		current:   snap.Current,
		duration:  snap.Duration,
		status:    snap.Status,
		canRecord: snap.CanRecord,
	}
}

// Forward returns a machine observer that feeds events into p.
func Forward(p *tea.Program) func(practice.Event) {
	return func(ev practice.Event) {
		p.Send(EventMsg{Event: ev})
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func action(name string, f func() error) tea.Cmd {
	return func() tea.Msg {
		if err := f(); err != nil {
			return ActionErrorMsg{Action: name, Err: err}
		}
		return nil
	}
}

func do(f func()) tea.Cmd {
	return func() tea.Msg {
		f()
		return nil
	}
}

func clearErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearErrorMsg{}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case EventMsg:
		m.handleEvent(msg.Event)
		return m, nil

	case ActionErrorMsg:
		m.errorMessage = fmt.Sprintf("%s: %v", msg.Action, msg.Err)
		return m, clearErrorCmd()

	case ClearErrorMsg:
		m.errorMessage = ""
		return m, nil
	}
	return m, nil
}

func (m *Model) handleEvent(ev practice.Event) {
	m.phase = ev.Phase
	m.line = ev.Line

	switch ev.Kind {
	case practice.PhaseChanged:
		switch ev.Phase {
		case practice.Complete:
			m.completed = true
		case practice.LinePlaying:
			m.completed = false
		}
	case practice.Progress:
		m.current = ev.Current
		m.duration = ev.Duration
	case practice.Status:
		m.status = ev.Status
	case practice.RecorderAvailability:
		m.canRecord = ev.Available
	}
}

func (m Model) running() bool {
	return m.phase != practice.Idle && m.phase != practice.Complete
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	c := m.ctrl
	switch msg.String() {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		return m, tea.Quit

	case KeySpace:
		if m.running() {
			return m, do(c.Stop)
		}
		m.playing = false
		return m, action("start", c.Start)

	case KeyRecord:
		switch m.phase {
		case practice.AwaitingRecording:
			return m, action("record", func() error { return c.BeginRecording(m.ctx) })
		case practice.Recording:
			return m, action("record", c.EndRecording)
		}

	case KeyReview:
		if m.phase == practice.Reviewing {
			return m, action("review", func() error { return c.ReviewPlayback(m.ctx) })
		}

	case KeySkip:
		if m.running() {
			return m, do(c.Skip)
		}

	case KeyRetry:
		if m.phase == practice.Reviewing {
			return m, do(c.Retry)
		}

	case KeyReplay:
		if m.phase == practice.AwaitingRecording {
			return m, do(c.ReplayLine)
		}

	case KeyPlay:
		if m.running() {
			return m, nil
		}
		m.playing = !m.playing
		if m.playing {
			return m, do(c.Play)
		}
		return m, do(c.Pause)
	}
	return m, nil
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	divider := DividerStyle.Render(strings.Repeat("─", m.width))
	sections := []string{
		m.renderHeader(),
		m.renderProgress(),
		divider,
		m.renderLyrics(),
		divider,
		StatusStyle.Render(m.status),
	}
	if m.errorMessage != "" {
		sections = append(sections, ErrorStyle.Render("Error: "+m.errorMessage))
	}
	sections = append(sections, m.renderFooter())
	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := TitleStyle.Render("KARAOKE")
	if m.title != "" {
		title += DimStyle.Render(" · " + m.title)
	}
	mic := DimStyle.Render("  [listen only]")
	if m.canRecord {
		mic = DimStyle.Render("  [mic]")
	}
	return title + "  " + phaseBadge(m.phase, m.completed) + mic
}

func phaseBadge(p practice.Phase, completed bool) string {
	switch p {
	case practice.LinePlaying:
		return ListeningStyle.Render("♪ LISTEN")
	case practice.AwaitingRecording:
		return WaitingStyle.Render("○ YOUR TURN")
	case practice.Recording:
		return RecordingStyle.Render("● REC")
	case practice.Reviewing:
		return ReviewStyle.Render("▶ REVIEW")
	case practice.Complete:
		return ListeningStyle.Render("✓ COMPLETE")
	}
	if completed {
		return ListeningStyle.Render("✓ COMPLETE")
	}
	return IdleStyle.Render("○ IDLE")
}

func (m Model) renderProgress() string {
	label := fmt.Sprintf(" %s / %s", clock(m.current), clock(m.duration))

	barLen := m.width - lipgloss.Width(label) - 2
	if barLen < 10 {
		return DimStyle.Render(label)
	}
	filled := 0
	if m.duration > 0 {
		filled = int(float64(barLen) * min(m.current/m.duration, 1))
	}
	return ProgressFillStyle.Render(strings.Repeat("━", filled)) +
		ProgressEmptyStyle.Render(strings.Repeat("─", barLen-filled)) +
		DimStyle.Render(label)
}

func clock(seconds float64) string {
	if s := music.FormatDuration(seconds); s != "" {
		return s
	}
	return "0:00"
}

// lyricsHeight 除去页眉页脚后歌词区域的行数
func (m Model) lyricsHeight() int {
	return max(m.height-8, 3)
}

func (m Model) renderLyrics() string {
	if len(m.lines) == 0 {
		return DimStyle.Render("No lyrics loaded.")
	}

	height := m.lyricsHeight()
	start := 0
	if m.line >= 0 {
		start = m.line - height/2
	}
	start = max(0, min(start, len(m.lines)-height))
	end := min(len(m.lines), start+height)

	rows := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		text := truncateToWidth(fmt.Sprintf("%3d  %s", i+1, m.lines[i]), m.width)
		if i == m.line {
			rows = append(rows, ActiveLineStyle.Render(text))
		} else {
			rows = append(rows, LineStyle.Render(text))
		}
	}
	return strings.Join(rows, "\n")
}

func key(k, desc string) string {
	return FooterKeyStyle.Render(k) + FooterDescStyle.Render(" "+desc)
}

func (m Model) renderFooter() string {
	var parts []string
	switch m.phase {
	case practice.AwaitingRecording:
		if m.canRecord {
			parts = append(parts, key("r", "Record"))
		}
		parts = append(parts, key("l", "Replay"), key("n", "Skip"))
	case practice.Recording:
		parts = append(parts, key("r", "Stop rec"), key("n", "Skip"))
	case practice.Reviewing:
		parts = append(parts, key("p", "Review"), key("a", "Retry"), key("n", "Next"))
	case practice.LinePlaying:
		parts = append(parts, key("n", "Skip"))
	default:
		parts = append(parts, key("Enter", "Play/Pause"))
	}

	if m.running() {
		parts = append(parts, key("Space", "Stop"))
	} else {
		parts = append(parts, key("Space", "Practice"))
	}
	parts = append(parts, key("q", "Quit"))
	return strings.Join(parts, "  ")
}

func truncateToWidth(s string, width int) string {
	if width <= 1 || lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes)) > width-1 {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}
