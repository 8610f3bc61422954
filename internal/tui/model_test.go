package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ent0n29/carecompanion/internal/chat"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func clinicalReply(_ context.Context, req chat.Request) (chat.Reply, error) {
	return chat.Reply{
		SessionID:  "3f2a9c1e-0000-4000-8000-000000000000",
		Text:       "Elevate your legs and limit salt. (re: " + req.Message + ")",
		Agent:      chat.AgentClinical,
		Citations:  []string{"Nephrology Reference: Fluid Overload and Edema"},
		SourceType: chat.SourceKnowledgeBase,
	}, nil
}

func newTestModel(t *testing.T, tr chat.Transport) (Model, *chat.Controller) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ctrl := chat.NewController(tr)
	t.Cleanup(func() {
		cancel()
		ctrl.Close()
	})
	m := New(ctx, ctrl)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 200})
	return next.(Model), ctrl
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestViewShowsGreeting(t *testing.T) {
	m, _ := newTestModel(t, chat.TransportFunc(clinicalReply))
	view := m.View()
	assert.Contains(t, view, "CareCompanion AI")
	assert.Contains(t, view, "Receptionist")
	assert.Contains(t, view, chat.GreetingText)
	assert.NotContains(t, view, "typing")
}

func TestTypingUpdatesControllerInput(t *testing.T) {
	m, ctrl := newTestModel(t, chat.TransportFunc(clinicalReply))
	m, _ = update(t, m, runes("hi"))
	assert.Equal(t, "hi", ctrl.Input())
	assert.Equal(t, "hi", m.input.Value())
}

func TestQuickReplyPrefillsWithoutSending(t *testing.T) {
	m, ctrl := newTestModel(t, chat.TransportFunc(clinicalReply))
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'3'}, Alt: true})
	assert.Nil(t, cmd)
	assert.Equal(t, QuickReplies[2], ctrl.Input())
	assert.Equal(t, QuickReplies[2], m.input.Value())
	assert.Len(t, ctrl.Transcript(), 1)
}

func TestEnterSubmitsAndRendersReply(t *testing.T) {
	m, ctrl := newTestModel(t, chat.TransportFunc(clinicalReply))
	m, _ = update(t, m, runes("my ankles are puffy"))

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, submittedMsg{outcome: chat.OutcomeReplied}, msg)

	m, _ = update(t, m, msg)
	m, _ = update(t, m, snapshotMsg(ctrl.Snapshot()))
	assert.Empty(t, m.input.Value())
	assert.Equal(t, chat.OutcomeReplied, m.lastOutcome)

	view := m.View()
	assert.Contains(t, view, "my ankles are puffy")
	assert.Contains(t, view, "Clinical Agent")
	assert.Contains(t, view, "[Reference]")
	assert.Contains(t, view, "Sources:")
	assert.Contains(t, view, "Fluid Overload and Edema")
	assert.Contains(t, view, "session 3f2a9c1e")
}

func TestInputDisabledWhileAwaiting(t *testing.T) {
	release := make(chan struct{})
	tr := chat.TransportFunc(func(ctx context.Context, req chat.Request) (chat.Reply, error) {
		<-release
		return clinicalReply(ctx, req)
	})
	m, ctrl := newTestModel(t, tr)
	m, _ = update(t, m, runes("hello"))
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()
	require.Eventually(t, ctrl.Awaiting, time.Second, 5*time.Millisecond)

	m, _ = update(t, m, snapshotMsg(ctrl.Snapshot()))
	assert.Contains(t, m.View(), "Assistant is typing")
	assert.False(t, m.input.Focused())

	m, _ = update(t, m, runes("more"))
	assert.Empty(t, ctrl.Input(), "keystrokes are dropped while awaiting")
	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)

	close(release)
	assert.Equal(t, submittedMsg{outcome: chat.OutcomeReplied}, <-done)
	m, _ = update(t, m, snapshotMsg(ctrl.Snapshot()))
	assert.True(t, m.input.Focused())
	assert.NotContains(t, m.View(), "Assistant is typing")
}

func TestStaleSnapshotKeepsTyping(t *testing.T) {
	m, _ := newTestModel(t, chat.TransportFunc(clinicalReply))
	old := m.snap
	m, _ = update(t, m, runes("abc"))
	old.Input = "a"
	m, _ = update(t, m, snapshotMsg(old))
	assert.Equal(t, "abc", m.input.Value())
}

func TestClosedSubscriptionQuits(t *testing.T) {
	m, _ := newTestModel(t, chat.TransportFunc(clinicalReply))
	_, cmd := update(t, m, closedMsg{})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestRenderTurnBadgesAndFailures(t *testing.T) {
	st := defaultStyles()
	web := renderTurn(chat.Turn{
		Role:       chat.RoleAssistant,
		Content:    "New SGLT2 data.",
		Agent:      chat.AgentClinical,
		Citations:  []string{"SGLT2 Inhibitors (https://example.org)"},
		SourceType: chat.SourceWeb,
	}, st, nil, 0)
	assert.Contains(t, web, "[Web]")
	assert.Contains(t, web, "SGLT2 Inhibitors (https://example.org)")

	receptionKB := renderTurn(chat.Turn{
		Role:       chat.RoleAssistant,
		Content:    "Hi John!",
		Agent:      chat.AgentReceptionist,
		SourceType: chat.SourceKnowledgeBase,
	}, st, nil, 0)
	assert.NotContains(t, receptionKB, "[Reference]")
	assert.NotContains(t, receptionKB, "Sources:")

	apology := renderTurn(chat.Turn{Role: chat.RoleAssistant, Content: chat.ApologyText}, st, nil, 0)
	assert.Equal(t, chat.ApologyText, strings.TrimSpace(apology))
}
