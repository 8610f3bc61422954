package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/carecompanion/internal/config"
	"github.com/ent0n29/carecompanion/internal/observability"
	"github.com/ent0n29/carecompanion/internal/protocol"
	"github.com/ent0n29/carecompanion/internal/session"
)

// ReadyCheck reports whether a dependency of the backend can serve traffic.
type ReadyCheck struct {
	ID    string
	Label string
	Check func(ctx context.Context) error
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger.Named("httpapi")
		}
	}
}

func WithReadyCheck(c ReadyCheck) Option {
	return func(s *Server) {
		if c.Check != nil {
			s.checks = append(s.checks, c)
		}
	}
}

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	engine   session.Responder
	metrics  *observability.Metrics
	limiter  *limiter
	logger   *zap.Logger
	checks   []ReadyCheck
	upgrader websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, engine session.Responder, metrics *observability.Metrics, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		engine:   engine,
		metrics:  metrics,
		limiter:  newLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		logger:   zap.NewNop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Terminal clients send no Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handleStageLatency)

	r.Post("/chat", s.handleChat)
	r.Get("/chat/ws", s.handleChatWS)
	r.Post("/v1/session/{id}/end", s.handleEndSession)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

type readyCheckResult struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	results := make([]readyCheckResult, 0, len(s.checks))
	for _, c := range s.checks {
		res := readyCheckResult{ID: c.ID, Status: "ok", Label: c.Label}
		if err := c.Check(ctx); err != nil {
			res.Status = "error"
			res.Detail = err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		results = append(results, res)
	}
	respondJSON(w, code, map[string]any{
		"status": status,
		"checks": results,
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	respondJSON(w, http.StatusOK, sess)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

const maxRequestBody = 64 << 10

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// chatResponse shapes a finished exchange for the wire.
func chatResponse(ex session.Exchange) protocol.ChatResponse {
	id := ex.Session.ID
	reply := ex.Result.Reply
	citations := ex.Result.Citations
	if citations == nil {
		citations = []string{}
	}
	return protocol.ChatResponse{
		SessionID:  &id,
		Reply:      &reply,
		Agent:      string(ex.Result.Agent),
		Citations:  citations,
		SourceType: string(ex.Result.SourceType),
	}
}
