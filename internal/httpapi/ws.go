package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/carecompanion/internal/protocol"
)

const (
	wsReadLimit    = 1 << 20
	wsIdleTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// handleChatWS serves chat_request frames one at a time on a single connection.
// Each request frame gets exactly one chat_response or error_event with the same id.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	defer s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()

	ctx := r.Context()
	fallbackKey := clientKey(r)

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		frame, err := protocol.ParseClientMessage(data)
		if err != nil {
			if !s.writeFrame(conn, protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				ID:     envelopeID(data),
				Code:   protocol.CodeBadRequest,
				Detail: err.Error(),
			}) {
				return
			}
			continue
		}
		s.metrics.WSMessages.WithLabelValues("inbound", string(frame.Type)).Inc()

		var out any
		ex, err := s.converse(ctx, sessionOf(frame), fallbackKey, frame.Message)
		switch {
		case errors.Is(err, errRateLimited):
			out = protocol.ErrorEvent{Type: protocol.TypeErrorEvent, ID: frame.ID, Code: protocol.CodeRateLimited, Retryable: true, Detail: err.Error()}
		case err != nil:
			out = protocol.ErrorEvent{Type: protocol.TypeErrorEvent, ID: frame.ID, Code: protocol.CodeInternal, Detail: "the assistant could not answer"}
		default:
			out = protocol.NewChatResponseFrame(frame.ID, chatResponse(ex))
		}
		if !s.writeFrame(conn, out) {
			return
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, msg any) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Debug("websocket write failed", zap.Error(err))
		return false
	}
	switch m := msg.(type) {
	case protocol.ChatResponseFrame:
		s.metrics.WSMessages.WithLabelValues("outbound", string(m.Type)).Inc()
	case protocol.ErrorEvent:
		s.metrics.WSMessages.WithLabelValues("outbound", string(m.Type)).Inc()
	}
	return true
}

func sessionOf(f protocol.ChatRequestFrame) string {
	return protocol.ChatRequest{SessionID: f.SessionID}.Session()
}

func envelopeID(raw []byte) string {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	return env.ID
}
