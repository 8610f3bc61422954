package backend

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/carecompanion/internal/agents"
	"github.com/ent0n29/carecompanion/internal/chat"
	"github.com/ent0n29/carecompanion/internal/session"
)

func newLocal() *LocalTransport {
	engine := agents.NewEngine(agents.NewInMemoryDirectory(agents.SeedPatients()...), nil, nil)
	return NewLocalTransport(session.NewManager(time.Minute), engine)
}

func TestNewTransportModes(t *testing.T) {
	local := newLocal()
	cases := []struct {
		name string
		cfg  Config
		want any
	}{
		{"auto prefers ws", Config{WSURL: "ws://localhost:8000/chat/ws", HTTPURL: "http://localhost:8000/chat"}, &WSTransport{}},
		{"auto falls back to http", Config{Mode: "AUTO", HTTPURL: "http://localhost:8000/chat", Local: local}, &HTTPTransport{}},
		{"auto falls back to local", Config{Local: local}, &LocalTransport{}},
		{"http", Config{Mode: ModeHTTP, HTTPURL: "http://localhost:8000/chat"}, &HTTPTransport{}},
		{"http without url", Config{Mode: ModeHTTP}, &HTTPTransport{url: DefaultHTTPURL}},
		{"ws", Config{Mode: ModeWS, WSURL: "http://localhost:8000/chat/ws"}, &WSTransport{}},
		{"local", Config{Mode: ModeLocal, Local: local}, &LocalTransport{}},
		{"timeout wraps", Config{Mode: ModeHTTP, HTTPURL: "http://x/chat", Timeout: time.Second}, &timeoutTransport{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr, err := NewTransport(tc.cfg)
			require.NoError(t, err)
			assert.IsType(t, tc.want, tr)
			if want, ok := tc.want.(*HTTPTransport); ok && want.url != "" {
				assert.Equal(t, want.url, tr.(*HTTPTransport).url)
			}
			assert.NoError(t, Close(tr))
		})
	}
}

func TestNewTransportErrors(t *testing.T) {
	for name, cfg := range map[string]Config{
		"unknown mode":    {Mode: "carrier-pigeon"},
		"ws without url":  {Mode: ModeWS},
		"ws bad scheme":   {Mode: ModeWS, WSURL: "ftp://x"},
		"local no engine": {Mode: ModeLocal},
		"auto nothing":    {},
	} {
		_, err := NewTransport(cfg)
		assert.Error(t, err, name)
	}
}

func TestLocalTransportDrivesController(t *testing.T) {
	c := chat.NewController(newLocal())
	defer c.Close()

	require.Equal(t, chat.OutcomeReplied, c.Submit(context.Background(), "Hi, I'm John Smith"))
	sessionID := c.SessionID()
	_, err := uuid.Parse(sessionID)
	require.NoError(t, err)
	last := c.Snapshot().Last()
	assert.Equal(t, chat.AgentReceptionist, last.Agent)
	assert.Equal(t, chat.SourceNone, last.SourceType)

	require.Equal(t, chat.OutcomeReplied, c.Submit(context.Background(), "I have swelling in my legs"))
	assert.Equal(t, sessionID, c.SessionID())
	last = c.Snapshot().Last()
	assert.Equal(t, chat.AgentClinical, last.Agent)
	assert.Equal(t, chat.SourceKnowledgeBase, last.SourceType)
	assert.NotEmpty(t, last.Citations)
	assert.Len(t, c.Transcript(), 5)
}

func TestLocalTransportCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newLocal().Send(ctx, chat.Request{Message: "hi"})
	assert.ErrorIs(t, err, context.Canceled)
}
