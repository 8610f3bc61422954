package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/carecompanion/internal/agents"
)

var ErrNotFound = errors.New("session not found")

// Responder answers one message against a session's conversation state.
// agents.Engine satisfies it.
type Responder interface {
	Respond(ctx context.Context, sessionID string, st *agents.State, message string) (agents.Result, error)
}

type entry struct {
	// turn serializes messages within one session.
	turn    sync.Mutex
	session Session
	state   agents.State
}

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*entry
	inactivityTimeout time.Duration
	onExpire          func(*Session)
	now               func() time.Time
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*entry),
		inactivityTimeout: inactivityTimeout,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) Create() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.createLocked(uuid.NewString()))
}

func (m *Manager) createLocked(id string) *Session {
	now := m.now()
	e := &entry{session: Session{
		ID:             id,
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}}
	m.sessions[id] = e
	return &e.session
}

// resolve returns the entry for requestedID. A blank or malformed id gets a
// fresh uuid. A well-formed id that is unknown or ended starts a new
// conversation under that id so the client's session identity survives a
// backend restart.
func (m *Manager) resolve(requestedID string) (*entry, bool) {
	id := strings.TrimSpace(requestedID)
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[id]; ok && e.session.Status == StatusActive {
		return e, false
	}
	m.createLocked(id)
	return m.sessions[id], true
}

// Converse answers message within the session named by requestedID, creating
// the session when needed. Messages for one session run one at a time.
func (m *Manager) Converse(ctx context.Context, requestedID, message string, r Responder) (Exchange, error) {
	e, created := m.resolve(requestedID)

	e.turn.Lock()
	defer e.turn.Unlock()

	res, err := r.Respond(ctx, e.session.ID, &e.state, message)
	if err != nil {
		return Exchange{}, err
	}

	m.mu.Lock()
	e.session.TurnCount++
	e.session.LastActivityAt = m.now()
	e.session.CurrentAgent = e.state.CurrentAgent
	e.session.HandoffToClinical = e.state.HandoffToClinical
	e.session.PatientName = e.state.UserName
	out := clone(&e.session)
	m.mu.Unlock()

	return Exchange{Session: out, Result: res, Created: created}, nil
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(&e.session), nil
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	e.session.LastActivityAt = m.now()
	return nil
}

func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	e.session.Status = StatusEnded
	e.session.LastActivityAt = m.now()
	return clone(&e.session), nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

// IsActive reports whether sessionID names a live session.
func (m *Manager) IsActive(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[strings.TrimSpace(sessionID)]
	return ok && e.session.Status == StatusActive
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, e := range m.sessions {
		if e.session.Status == StatusActive {
			count++
		}
	}
	return count
}

func (m *Manager) expireInactive() {
	now := m.now()
	var expired []*Session

	m.mu.Lock()
	for id, e := range m.sessions {
		if e.session.Status != StatusActive {
			// Ended sessions linger for one inactivity period before removal.
			if now.Sub(e.session.LastActivityAt) >= m.inactivityTimeout {
				delete(m.sessions, id)
			}
			continue
		}
		if now.Sub(e.session.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		e.session.Status = StatusEnded
		e.session.LastActivityAt = now
		expired = append(expired, clone(&e.session))
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
