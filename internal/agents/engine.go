package agents

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/carecompanion/internal/policy"
)

type Option func(*Engine)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger.Named("agents")
		}
	}
}

func WithStageObserver(o StageObserver) Option {
	return func(e *Engine) {
		if o != nil {
			e.stages = o
		}
	}
}

// Engine routes each turn to the receptionist or the clinical agent. The
// receptionist owns the conversation until it hands off; from then on every
// turn goes to the clinical agent.
type Engine struct {
	receptionist *Receptionist
	clinical     *Clinical
	logger       *zap.Logger
	stages       StageObserver
}

func NewEngine(patients PatientDirectory, kb *KnowledgeBase, web WebSearcher, opts ...Option) *Engine {
	e := &Engine{
		receptionist: NewReceptionist(patients),
		clinical:     NewClinical(kb, web),
		logger:       zap.NewNop(),
		stages:       nopStages{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Respond runs one turn against st. A receptionist handoff continues to the
// clinical agent within the same turn, so the returned result comes from the
// last agent that ran.
func (e *Engine) Respond(ctx context.Context, sessionID string, st *State, message string) (Result, error) {
	if st == nil {
		return Result{}, errors.New("nil conversation state")
	}
	turnStart := time.Now()
	defer func() { e.stages.ObserveStage("turn_total", time.Since(turnStart)) }()

	st.append("user", message, "")

	routeStart := time.Now()
	next := route(st)
	e.stages.ObserveStage("route", time.Since(routeStart))

	var (
		res Result
		err error
	)
	if next == AgentReceptionist {
		start := time.Now()
		res, err = e.receptionist.Respond(ctx, st, message)
		e.stages.ObserveStage("receptionist", time.Since(start))
		if err != nil {
			return Result{}, err
		}
		st.append("assistant", res.Reply, AgentReceptionist)
		st.CurrentAgent = AgentReceptionist
		if st.HandoffToClinical {
			e.logEvent(sessionID, AgentReceptionist, "handoff")
			next = AgentClinical
		}
	}

	if next == AgentClinical {
		tool := e.clinical.Tool(message)
		e.logEvent(sessionID, AgentClinical, tool)
		start := time.Now()
		res, err = e.clinical.Respond(ctx, st, message)
		stage := "clinical_kb"
		if tool == ToolWebSearch {
			stage = "clinical_web"
		}
		e.stages.ObserveStage(stage, time.Since(start))
		if err != nil {
			return Result{}, err
		}
		st.append("assistant", res.Reply, AgentClinical)
		st.CurrentAgent = AgentClinical
	}

	e.logger.Debug("turn answered",
		zap.String("session_id", sessionID),
		zap.String("agent", string(res.Agent)),
		zap.String("source_type", string(res.SourceType)),
		zap.Int("citations", len(res.Citations)),
		zap.String("message", policy.ForLog(message, 120)))
	return res, nil
}

func route(st *State) Agent {
	if st.HandoffToClinical {
		return AgentClinical
	}
	return AgentReceptionist
}

func (e *Engine) logEvent(sessionID string, agent Agent, action string) {
	e.logger.Info("agent event",
		zap.String("session_id", sessionID),
		zap.String("agent", string(agent)),
		zap.String("action", action))
}
