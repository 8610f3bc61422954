package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/carecompanion/internal/agents"
	"github.com/ent0n29/carecompanion/internal/backend"
	"github.com/ent0n29/carecompanion/internal/chat"
	"github.com/ent0n29/carecompanion/internal/config"
	"github.com/ent0n29/carecompanion/internal/httpapi"
	"github.com/ent0n29/carecompanion/internal/observability"
	"github.com/ent0n29/carecompanion/internal/session"
)

const janitorInterval = 5 * time.Second

// Backend is the in-process agent stack shared by `serve` and the local transport.
type Backend struct {
	Sessions  *session.Manager
	Engine    *agents.Engine
	Patients  agents.PatientDirectory
	Knowledge *agents.KnowledgeBase

	Cleanup func() error
}

// BuildBackend wires the patient directory, knowledge base, agent engine and
// session manager. The session janitor runs until ctx is done.
func BuildBackend(ctx context.Context, cfg config.Config, logger *zap.Logger, metrics *observability.Metrics) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	patients, err := agents.NewPatientDirectory(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("patient directory init failed: %w", err)
	}

	kb, err := agents.LoadKnowledgeBase(cfg.KnowledgeBasePath)
	if err != nil {
		_ = patients.Close()
		return nil, fmt.Errorf("knowledge base init failed: %w", err)
	}

	engine := agents.NewEngine(patients, kb, agents.NewCuratedSearcher(),
		agents.WithLogger(logger),
		agents.WithStageObserver(metrics),
	)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(s *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
		logger.Debug("session expired", zap.String("session_id", s.ID), zap.Int("turns", s.TurnCount))
	})
	sessions.StartJanitor(ctx, janitorInterval)

	logger.Info("agent backend ready",
		zap.Bool("postgres", cfg.DatabaseURL != ""),
		zap.Int("reference_documents", kb.Len()),
	)

	return &Backend{
		Sessions:  sessions,
		Engine:    engine,
		Patients:  patients,
		Knowledge: kb,
		Cleanup:   patients.Close,
	}, nil
}

type Server struct {
	Config  config.Config
	API     *httpapi.Server
	Backend *Backend
	Metrics *observability.Metrics
}

func BuildServer(ctx context.Context, cfg config.Config, logger *zap.Logger, metrics *observability.Metrics) (*Server, error) {
	be, err := BuildBackend(ctx, cfg, logger, metrics)
	if err != nil {
		return nil, err
	}

	opts := []httpapi.Option{httpapi.WithLogger(logger)}
	if p, ok := be.Patients.(interface{ Ping(context.Context) error }); ok {
		opts = append(opts, httpapi.WithReadyCheck(httpapi.ReadyCheck{
			ID:    "patient_directory",
			Label: "Discharge report database",
			Check: p.Ping,
		}))
	}
	opts = append(opts, httpapi.WithReadyCheck(httpapi.ReadyCheck{
		ID:    "knowledge_base",
		Label: "Nephrology reference documents",
		Check: func(context.Context) error {
			if be.Knowledge.Len() == 0 {
				return errors.New("no reference documents loaded")
			}
			return nil
		},
	}))

	return &Server{
		Config:  cfg,
		API:     httpapi.New(cfg, be.Sessions, be.Engine, metrics, opts...),
		Backend: be,
		Metrics: metrics,
	}, nil
}

// Client is a conversation controller bound to the configured backend.
type Client struct {
	Controller *chat.Controller
	Transport  chat.Transport

	cleanup []func() error
}

// BuildClient selects the transport from cfg. The local backend is only
// built when the mode needs it.
func BuildClient(ctx context.Context, cfg config.Config, logger *zap.Logger, metrics *observability.Metrics) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{}
	var local chat.Transport
	if needsLocal(cfg) {
		be, err := BuildBackend(ctx, cfg, logger, metrics)
		if err != nil {
			return nil, err
		}
		c.cleanup = append(c.cleanup, be.Cleanup)
		local = backend.NewLocalTransport(be.Sessions, be.Engine)
	}

	transport, err := backend.NewTransport(backend.Config{
		Mode:    cfg.BackendMode,
		HTTPURL: cfg.BackendURL,
		WSURL:   cfg.BackendWSURL,
		Timeout: cfg.RequestTimeout,
		Local:   local,
		Logger:  logger,
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("backend transport init failed: %w", err)
	}
	c.Transport = transport
	c.cleanup = append(c.cleanup, func() error { return backend.Close(transport) })

	c.Controller = chat.NewController(transport,
		chat.WithLogger(logger),
		chat.WithRecorder(metrics),
	)
	return c, nil
}

// Close stops the controller and releases the transport and any local backend.
func (c *Client) Close() error {
	if c.Controller != nil {
		c.Controller.Close()
	}
	var errs []error
	for i := len(c.cleanup) - 1; i >= 0; i-- {
		if err := c.cleanup[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.cleanup = nil
	return errors.Join(errs...)
}

func needsLocal(cfg config.Config) bool {
	switch cfg.BackendMode {
	case backend.ModeLocal:
		return true
	case backend.ModeAuto, "":
		return cfg.BackendWSURL == "" && cfg.BackendURL == ""
	default:
		return false
	}
}
