// Package backend implements chat.Transport over HTTP, a persistent websocket,
// or an in-process agent engine.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/carecompanion/internal/chat"
	"github.com/ent0n29/carecompanion/internal/protocol"
)

const (
	ModeAuto  = "auto"
	ModeHTTP  = "http"
	ModeWS    = "ws"
	ModeLocal = "local"
)

// DefaultHTTPURL is the chat endpoint used by http mode when no url is set.
const DefaultHTTPURL = "http://localhost:8000/chat"

// Config controls transport construction.
type Config struct {
	Mode    string
	HTTPURL string
	WSURL   string
	// Timeout bounds each exchange; zero means no bound.
	Timeout time.Duration
	// Local answers in process when Mode is local, or in auto mode when no URL is set.
	Local  chat.Transport
	Logger *zap.Logger
}

// NewTransport selects a transport for cfg.Mode.
func NewTransport(cfg Config) (chat.Transport, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = ModeAuto
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		t   chat.Transport
		err error
	)
	switch mode {
	case ModeAuto:
		t, err = newAutoTransport(cfg, logger)
	case ModeHTTP:
		url := cfg.HTTPURL
		if strings.TrimSpace(url) == "" {
			url = DefaultHTTPURL
		}
		t = NewHTTPTransport(url, nil)
	case ModeWS:
		if strings.TrimSpace(cfg.WSURL) == "" {
			return nil, errors.New("backend websocket url is required for ws mode")
		}
		t, err = NewWSTransport(cfg.WSURL, logger)
	case ModeLocal:
		if cfg.Local == nil {
			return nil, errors.New("local mode requires an in-process engine")
		}
		t = cfg.Local
	default:
		return nil, fmt.Errorf("unsupported backend mode %q", cfg.Mode)
	}
	if err != nil {
		return nil, err
	}
	return WithTimeout(t, cfg.Timeout), nil
}

func newAutoTransport(cfg Config, logger *zap.Logger) (chat.Transport, error) {
	if strings.TrimSpace(cfg.WSURL) != "" {
		return NewWSTransport(cfg.WSURL, logger)
	}
	if strings.TrimSpace(cfg.HTTPURL) != "" {
		return NewHTTPTransport(cfg.HTTPURL, nil), nil
	}
	if cfg.Local != nil {
		return cfg.Local, nil
	}
	return nil, errors.New("no backend configured: set a backend url or use local mode")
}

// StatusError is a non-2xx HTTP answer. Body is kept for logs only.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend http status %d", e.Code)
	}
	return fmt.Sprintf("backend http status %d: %s", e.Code, e.Body)
}

func (e *StatusError) StatusCode() int { return e.Code }

// ServerError is an error_event received over the websocket.
type ServerError struct {
	Code      string
	Retryable bool
	Detail    string
}

func (e *ServerError) Error() string {
	if e.Detail == "" {
		return "backend error: " + e.Code
	}
	return fmt.Sprintf("backend error: %s: %s", e.Code, e.Detail)
}

// StatusCode maps the event code onto the HTTP status the same failure gets on POST /chat.
func (e *ServerError) StatusCode() int {
	switch e.Code {
	case protocol.CodeBadRequest:
		return http.StatusBadRequest
	case protocol.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

type timeoutTransport struct {
	next    chat.Transport
	timeout time.Duration
}

// WithTimeout bounds every exchange on t by d. A non-positive d returns t unchanged.
func WithTimeout(t chat.Transport, d time.Duration) chat.Transport {
	if d <= 0 || t == nil {
		return t
	}
	return &timeoutTransport{next: t, timeout: d}
}

func (t *timeoutTransport) Send(ctx context.Context, req chat.Request) (chat.Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Send(ctx, req)
}

// Close releases the wrapped transport's resources.
func (t *timeoutTransport) Close() error {
	return Close(t.next)
}

// Close releases a transport's connections when it holds any.
func Close(t chat.Transport) error {
	if c, ok := t.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func toReply(resp protocol.ChatResponse) chat.Reply {
	citations := resp.Citations
	if citations == nil {
		citations = []string{}
	}
	return chat.Reply{
		SessionID:  *resp.SessionID,
		Text:       *resp.Reply,
		Agent:      chat.Agent(resp.Agent),
		Citations:  citations,
		SourceType: chat.SourceType(resp.SourceType),
	}
}
