package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/carecompanion/internal/policy"
	"github.com/ent0n29/carecompanion/internal/reliability"
)

// Outcome reports what a submission did.
type Outcome string

const (
	// OutcomeIgnored: blank input, nothing happened.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeBusy: another exchange is pending; nothing happened.
	OutcomeBusy Outcome = "busy"
	// OutcomeReplied: the backend answered and the reply was appended.
	OutcomeReplied Outcome = "replied"
	// OutcomeFailed: the exchange failed and the apology was appended.
	OutcomeFailed Outcome = "failed"
)

type phase int

const (
	phaseIdle phase = iota
	phasePending
)

// Recorder receives controller measurements. observability.Metrics satisfies it.
type Recorder interface {
	ObserveSubmission(outcome string)
	ObserveExchange(d time.Duration, failureClass string)
	SetAwaiting(awaiting bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSubmission(string)              {}
func (nopRecorder) ObserveExchange(time.Duration, string) {}
func (nopRecorder) SetAwaiting(bool)                      {}

type Option func(*Controller)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger.Named("chat")
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithClock overrides the turn timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// Controller owns one conversation: session identity, transcript, the
// awaiting-response flag and the input buffer. All methods are safe for
// concurrent use; at most one backend exchange runs at a time.
type Controller struct {
	transport Transport
	logger    *zap.Logger
	recorder  Recorder
	now       func() time.Time
	hub       *hub

	mu        sync.Mutex
	phase     phase
	sessionID string
	turns     []Turn
	input     string
	version   uint64
}

func NewController(transport Transport, opts ...Option) *Controller {
	c := &Controller{
		transport: transport,
		logger:    zap.NewNop(),
		recorder:  nopRecorder{},
		now:       func() time.Time { return time.Now().UTC() },
		hub:       newHub(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.turns = []Turn{c.assistantTurn(GreetingText, AgentReceptionist, nil, "")}
	return c
}

// Submit sends utterance to the backend and appends the user turn plus exactly
// one assistant turn. Blank input and submissions made while another exchange
// is pending change nothing. Failures never escape: they become the apology turn.
func (c *Controller) Submit(ctx context.Context, utterance string) Outcome {
	c.mu.Lock()
	return c.submitLocked(ctx, utterance)
}

// SubmitInput submits the current input buffer. The buffer is read and cleared
// under the same lock, so an edit racing the submission is either sent or kept.
func (c *Controller) SubmitInput(ctx context.Context) Outcome {
	c.mu.Lock()
	return c.submitLocked(ctx, c.input)
}

// submitLocked is entered with c.mu held and releases it before the exchange.
func (c *Controller) submitLocked(ctx context.Context, utterance string) Outcome {
	if strings.TrimSpace(utterance) == "" {
		c.mu.Unlock()
		c.recorder.ObserveSubmission(string(OutcomeIgnored))
		return OutcomeIgnored
	}
	if c.phase == phasePending {
		c.mu.Unlock()
		c.logger.Debug("submission rejected while awaiting response")
		c.recorder.ObserveSubmission(string(OutcomeBusy))
		return OutcomeBusy
	}
	c.phase = phasePending
	c.turns = append(c.turns, c.userTurn(utterance))
	c.input = ""
	req := Request{SessionID: c.sessionID, Message: utterance}
	c.changedLocked()
	c.mu.Unlock()
	c.recorder.SetAwaiting(true)

	c.logger.Debug("chat exchange started",
		zap.String("session_id", req.SessionID),
		zap.String("message", policy.ForLog(utterance, 120)))

	start := time.Now()
	reply, err := c.exchange(ctx, req)
	elapsed := time.Since(start)
	class := reliability.ClassifyFailure(err)
	c.recorder.ObserveExchange(elapsed, class)

	outcome := OutcomeReplied
	c.mu.Lock()
	if err != nil {
		outcome = OutcomeFailed
		c.turns = append(c.turns, c.assistantTurn(ApologyText, "", nil, ""))
	} else {
		c.sessionID = reply.SessionID
		c.turns = append(c.turns, c.assistantTurn(reply.Text, reply.Agent, reply.Citations, reply.SourceType))
	}
	c.phase = phaseIdle
	sessionID := c.sessionID
	c.changedLocked()
	c.mu.Unlock()
	c.recorder.SetAwaiting(false)
	c.recorder.ObserveSubmission(string(outcome))

	if err != nil {
		c.logger.Warn("chat exchange failed",
			zap.String("session_id", sessionID),
			zap.String("failure_class", class),
			zap.Bool("transient", reliability.Transient(err)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return outcome
	}
	c.logger.Info("chat exchange completed",
		zap.String("session_id", sessionID),
		zap.String("agent", string(reply.Agent)),
		zap.String("source_type", string(reply.SourceType)),
		zap.Int("citations", len(reply.Citations)),
		zap.Duration("elapsed", elapsed))
	return outcome
}

// Prefill places text in the input buffer without sending it.
func (c *Controller) Prefill(text string) {
	c.SetInput(text)
}

// SetInput replaces the input buffer. Allowed at any time, including while awaiting.
func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.input == text {
		return
	}
	c.input = text
	c.changedLocked()
}

func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Controller) Awaiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == phasePending
}

func (c *Controller) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// Transcript returns a copy of all turns in insertion order.
func (c *Controller) Transcript() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cloneTurnsLocked()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe delivers the current snapshot immediately and a new one after each
// state change. The channel closes when ctx ends or the controller is closed.
func (c *Controller) Subscribe(ctx context.Context) <-chan Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hub.subscribe(ctx, c.snapshotLocked())
}

// Close ends all subscriptions.
func (c *Controller) Close() {
	c.hub.close()
}

func (c *Controller) exchange(ctx context.Context, req Request) (reply Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	if c.transport == nil {
		return Reply{}, fmt.Errorf("no transport configured")
	}
	reply, err = c.transport.Send(ctx, req)
	if err != nil {
		return Reply{}, err
	}
	if err := reply.validate(); err != nil {
		return Reply{}, err
	}
	return reply, nil
}

func (c *Controller) changedLocked() {
	c.version++
	c.hub.publish(c.snapshotLocked())
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID: c.sessionID,
		Turns:     c.cloneTurnsLocked(),
		Awaiting:  c.phase == phasePending,
		Input:     c.input,
		Version:   c.version,
	}
}

func (c *Controller) cloneTurnsLocked() []Turn {
	out := make([]Turn, len(c.turns))
	for i, t := range c.turns {
		out[i] = t.clone()
	}
	return out
}

func (c *Controller) userTurn(content string) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: c.now(),
	}
}

func (c *Controller) assistantTurn(content string, agent Agent, citations []string, source SourceType) Turn {
	return Turn{
		ID:         uuid.NewString(),
		Role:       RoleAssistant,
		Content:    content,
		Agent:      agent,
		Citations:  append([]string(nil), citations...),
		SourceType: source,
		CreatedAt:  c.now(),
	}
}
