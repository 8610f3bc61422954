package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ent0n29/carecompanion/internal/protocol"
	"github.com/ent0n29/carecompanion/internal/session"
)

var errRateLimited = errors.New("too many messages, slow down")

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req protocol.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, protocol.CodeBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, protocol.CodeBadRequest, "message is required")
		return
	}

	ex, err := s.converse(r.Context(), req.Session(), clientKey(r), req.Message)
	switch {
	case errors.Is(err, errRateLimited):
		respondError(w, http.StatusTooManyRequests, protocol.CodeRateLimited, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, protocol.CodeInternal, "the assistant could not answer")
		return
	}
	respondJSON(w, http.StatusOK, chatResponse(ex))
}

// converse runs one turn for both transports. Only a live session gets its
// own bucket; any other id, including a fresh uuid, is charged to
// fallbackKey so a client cannot mint buckets by rotating ids.
func (s *Server) converse(ctx context.Context, sessionID, fallbackKey, message string) (session.Exchange, error) {
	key := fallbackKey
	if s.sessions.IsActive(sessionID) {
		key = "session:" + sessionID
	}
	if !s.limiter.allow(key) {
		s.metrics.RateLimited.Inc()
		return session.Exchange{}, errRateLimited
	}

	ex, err := s.sessions.Converse(ctx, sessionID, message, s.engine)
	if err != nil {
		s.logger.Error("chat turn failed", zap.String("session_id", sessionID), zap.Error(err))
		return session.Exchange{}, err
	}
	if ex.Created {
		s.metrics.SessionEvents.WithLabelValues("created").Inc()
		s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	}
	s.metrics.ChatRequests.WithLabelValues(string(ex.Result.Agent), string(ex.Result.SourceType)).Inc()
	return ex, nil
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
