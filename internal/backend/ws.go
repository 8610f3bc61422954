package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/carecompanion/internal/chat"
	"github.com/ent0n29/carecompanion/internal/protocol"
)

const wsWriteTimeout = 3 * time.Second

var errConnClosed = errors.New("backend websocket connection closed")

// WSTransport keeps one websocket to the backend and sends one request at a
// time over it. The connection is dialed lazily and dropped on any error, so
// the next Send dials fresh.
type WSTransport struct {
	url    string
	dialer websocket.Dialer
	logger *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	frames *frameReader
}

func NewWSTransport(rawURL string, logger *zap.Logger) (*WSTransport, error) {
	wsURL, err := normalizeWSURL(rawURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSTransport{
		url:    wsURL,
		logger: logger.Named("ws"),
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 5 * time.Second,
		},
	}, nil
}

func normalizeWSURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("backend websocket url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid backend websocket url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported websocket url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("backend websocket url has no host")
	}
	return u.String(), nil
}

func (t *WSTransport) Send(ctx context.Context, req chat.Request) (chat.Reply, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil && t.frames.failed() {
		t.dropLocked("connection lost while idle", nil)
	}
	if t.conn == nil {
		if err := t.dialLocked(ctx); err != nil {
			return chat.Reply{}, err
		}
	}

	reply, err := t.exchangeLocked(ctx, req)
	if err != nil {
		var se *ServerError
		// An error_event is an answer, not a broken connection.
		if !errors.As(err, &se) {
			t.dropLocked("exchange failed", err)
		}
		return chat.Reply{}, err
	}
	return reply, nil
}

func (t *WSTransport) dialLocked(ctx context.Context) error {
	conn, resp, err := t.dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("backend websocket dial failed (%s): %w", resp.Status, err)
		}
		return fmt.Errorf("backend websocket dial failed: %w", err)
	}
	t.conn = conn
	t.frames = newFrameReader(conn)
	t.logger.Debug("websocket connected", zap.String("url", t.url))
	return nil
}

func (t *WSTransport) exchangeLocked(ctx context.Context, req chat.Request) (chat.Reply, error) {
	body := protocol.NewChatRequest(req.SessionID, req.Message)
	frame := protocol.ChatRequestFrame{
		Type:      protocol.TypeChatRequest,
		ID:        uuid.NewString(),
		SessionID: body.SessionID,
		Message:   body.Message,
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := t.conn.WriteJSON(frame); err != nil {
		return chat.Reply{}, fmt.Errorf("backend websocket write: %w", err)
	}
	_ = t.conn.SetWriteDeadline(time.Time{})

	for {
		raw, err := t.frames.next(ctx)
		if err != nil {
			return chat.Reply{}, err
		}
		msg, err := protocol.ParseServerMessage(raw)
		if errors.Is(err, protocol.ErrUnsupportedType) {
			continue
		}
		if err != nil {
			return chat.Reply{}, err
		}
		switch m := msg.(type) {
		case protocol.ChatResponseFrame:
			if m.ID != frame.ID {
				t.logger.Debug("skipping stale response", zap.String("id", m.ID))
				continue
			}
			resp := m.Response()
			if err := resp.Validate(); err != nil {
				return chat.Reply{}, err
			}
			return toReply(resp), nil
		case protocol.ErrorEvent:
			if m.ID != "" && m.ID != frame.ID {
				continue
			}
			return chat.Reply{}, &ServerError{Code: m.Code, Retryable: m.Retryable, Detail: m.Detail}
		}
	}
}

func (t *WSTransport) dropLocked(reason string, err error) {
	if t.conn == nil {
		return
	}
	t.logger.Debug("dropping websocket", zap.String("reason", reason), zap.Error(err))
	t.frames.stop()
	_ = t.conn.Close()
	t.conn = nil
	t.frames = nil
}

// Close drops the connection, if any.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.dropLocked("closed", nil)
	return nil
}

// frameReader pumps incoming messages into a channel so reads can honor a context.
type frameReader struct {
	msgs chan []byte
	errs chan error
	done chan struct{}
	once sync.Once
}

func newFrameReader(conn *websocket.Conn) *frameReader {
	r := &frameReader{
		msgs: make(chan []byte, 16),
		errs: make(chan error, 1),
		done: make(chan struct{}),
	}
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				r.errs <- err
				return
			}
			select {
			case r.msgs <- data:
			case <-r.done:
				return
			}
		}
	}()
	return r
}

func (r *frameReader) next(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data := <-r.msgs:
		return data, nil
	case err := <-r.errs:
		if err == nil {
			return nil, errConnClosed
		}
		return nil, fmt.Errorf("backend websocket read: %w", err)
	}
}

// failed reports whether the read loop has ended without consuming its error.
func (r *frameReader) failed() bool {
	select {
	case err := <-r.errs:
		r.errs <- err
		return true
	default:
		return false
	}
}

func (r *frameReader) stop() {
	r.once.Do(func() { close(r.done) })
}
