package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/carecompanion/internal/protocol"
)

// Request is one user utterance bound for the backend. An empty SessionID
// means no session has been established yet.
type Request struct {
	SessionID string
	Message   string
}

// Reply is a successful backend answer.
type Reply struct {
	SessionID  string
	Text       string
	Agent      Agent
	Citations  []string
	SourceType SourceType
}

// Transport performs one backend exchange. Any returned error is treated as a
// failed exchange; implementations must not retry on their own.
type Transport interface {
	Send(ctx context.Context, req Request) (Reply, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req Request) (Reply, error)

func (f TransportFunc) Send(ctx context.Context, req Request) (Reply, error) {
	return f(ctx, req)
}

func (r Reply) validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("%w: reply carries no session id", protocol.ErrMalformedResponse)
	}
	return nil
}
