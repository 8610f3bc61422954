package backend

import (
	"context"

	"github.com/ent0n29/carecompanion/internal/chat"
	"github.com/ent0n29/carecompanion/internal/session"
)

// LocalTransport answers through an in-process session manager and agent engine.
type LocalTransport struct {
	sessions *session.Manager
	engine   session.Responder
}

func NewLocalTransport(sessions *session.Manager, engine session.Responder) *LocalTransport {
	return &LocalTransport{sessions: sessions, engine: engine}
}

func (t *LocalTransport) Send(ctx context.Context, req chat.Request) (chat.Reply, error) {
	if err := ctx.Err(); err != nil {
		return chat.Reply{}, err
	}
	ex, err := t.sessions.Converse(ctx, req.SessionID, req.Message, t.engine)
	if err != nil {
		return chat.Reply{}, err
	}
	citations := ex.Result.Citations
	if citations == nil {
		citations = []string{}
	}
	return chat.Reply{
		SessionID:  ex.Session.ID,
		Text:       ex.Result.Reply,
		Agent:      chat.Agent(ex.Result.Agent),
		Citations:  citations,
		SourceType: chat.SourceType(ex.Result.SourceType),
	}, nil
}
