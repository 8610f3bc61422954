// Package tui renders a chat.Controller in the terminal. The model never owns
// conversation state: it mirrors controller snapshots and forwards keystrokes.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/ent0n29/carecompanion/internal/chat"
)

// QuickReplies are placed in the input on alt+1..alt+4.
var QuickReplies = [4]string{
	"Hi, I'm John Smith",
	"Hi, I'm Abhishek B Shetty",
	"I have swelling in my legs",
	"Latest research on SGLT2",
}

const disclaimerLine = "AI can make mistakes. Please verify important medical information."

type snapshotMsg chat.Snapshot

type closedMsg struct{}

type submittedMsg struct{ outcome chat.Outcome }

type Option func(*Model)

// WithMarkdown renders assistant replies through glamour.
func WithMarkdown(enabled bool) Option {
	return func(m *Model) { m.markdown = enabled }
}

type Model struct {
	ctx     context.Context
	ctrl    *chat.Controller
	updates <-chan chat.Snapshot
	snap    chat.Snapshot

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model
	md       *glamour.TermRenderer
	markdown bool
	styles   styles

	width  int
	height int

	lastOutcome chat.Outcome
}

// New subscribes to ctrl for the lifetime of ctx.
func New(ctx context.Context, ctrl *chat.Controller, opts ...Option) Model {
	st := defaultStyles()

	ti := textinput.New()
	ti.Placeholder = "Type your message..."
	ti.Prompt = "│ "
	ti.CharLimit = 2000
	ti.Width = 76
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = st.Typing

	m := Model{
		ctx:      ctx,
		ctrl:     ctrl,
		updates:  ctrl.Subscribe(ctx),
		snap:     ctrl.Snapshot(),
		input:    ti,
		spinner:  sp,
		viewport: viewport.New(80, 20),
		styles:   st,
		width:    80,
		height:   28,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.input.SetValue(m.snap.Input)
	m.resize(m.width, m.height)
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForSnapshot(m.updates), m.spinner.Tick, textinput.Blink)
}

func waitForSnapshot(ch <-chan chat.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return closedMsg{}
		}
		return snapshotMsg(s)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case snapshotMsg:
		m.apply(chat.Snapshot(msg))
		return m, waitForSnapshot(m.updates)
	case closedMsg:
		return m, tea.Quit
	case submittedMsg:
		m.lastOutcome = msg.outcome
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

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "enter":
		if m.snap.Awaiting {
			return m, nil
		}
		m.ctrl.SetInput(m.input.Value())
		return m, m.submit()
	case "alt+1", "alt+2", "alt+3", "alt+4":
		text := QuickReplies[key[len(key)-1]-'1']
		m.ctrl.Prefill(text)
		m.input.SetValue(text)
		m.input.CursorEnd()
		return m, nil
	case "pgup", "pgdown", "ctrl+u", "ctrl+d":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.snap.Awaiting {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.ctrl.SetInput(m.input.Value())
	return m, cmd
}

// submit runs the exchange off the update loop; its progress arrives as snapshots.
func (m Model) submit() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return submittedMsg{outcome: ctrl.SubmitInput(ctx)}
	}
}

func (m *Model) apply(s chat.Snapshot) {
	turnsChanged := len(s.Turns) != len(m.snap.Turns)
	m.snap = s
	// The controller clears the buffer when it accepts a submission. Other
	// input changes originate here, so older snapshots must not overwrite typing.
	if turnsChanged && m.input.Value() != s.Input {
		m.input.SetValue(s.Input)
		m.input.CursorEnd()
	}
	if s.Awaiting {
		m.input.Blur()
	} else {
		m.input.Focus()
	}
	m.refresh(turnsChanged)
}

func (m *Model) resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	m.width, m.height = width, height
	m.viewport.Width = width
	m.viewport.Height = max(height-lipgloss.Height(m.chrome()), 3)
	m.input.Width = max(width-4, 10)
	if m.markdown {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(max(width-4, 20)),
		)
		if err == nil {
			m.md = md
		}
	}
	m.refresh(true)
}

func (m *Model) refresh(follow bool) {
	m.viewport.SetContent(renderTranscript(m.snap.Turns, m.styles, m.md, max(m.width-4, 20)))
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m Model) header() string {
	title := m.styles.Title.Render("CareCompanion AI")
	sub := "Post-Discharge Support"
	if m.snap.HasSession() {
		sub = fmt.Sprintf("%s · session %s", sub, shortID(m.snap.SessionID))
	}
	return title + "  " + m.styles.Subtitle.Render(sub)
}

func (m Model) status() string {
	if m.snap.Awaiting {
		return m.styles.Typing.Render(m.spinner.View() + " Assistant is typing...")
	}
	return ""
}

func (m Model) help() string {
	parts := make([]string, 0, len(QuickReplies))
	for i, q := range QuickReplies {
		parts = append(parts, fmt.Sprintf("alt+%d %s", i+1, q))
	}
	return m.styles.Help.Render(strings.Join(parts, " · ")) + "\n" +
		m.styles.Disclaimer.Render(disclaimerLine+"  (esc to quit)")
}

// chrome is everything around the transcript viewport.
func (m Model) chrome() string {
	return strings.Join([]string{m.header(), "", m.status(), m.input.View(), m.help()}, "\n")
}

func (m Model) View() string {
	return strings.Join([]string{
		m.header(),
		m.viewport.View(),
		m.status(),
		m.input.View(),
		m.help(),
	}, "\n")
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// Run drives ctrl in a full-screen program until the user quits or ctx ends.
func Run(ctx context.Context, ctrl *chat.Controller) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p := tea.NewProgram(New(ctx, ctrl, WithMarkdown(true)), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
