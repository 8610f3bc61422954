// Package chat holds the conversation session controller: session identity,
// the append-only transcript, and the single in-flight backend exchange.
package chat

import (
	"slices"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Agent names the backend responder that produced an assistant turn.
type Agent string

const (
	AgentReceptionist Agent = "receptionist"
	AgentClinical     Agent = "clinical"
)

// SourceType tags how an assistant reply was grounded.
type SourceType string

const (
	SourceWeb           SourceType = "web"
	SourceKnowledgeBase SourceType = "kb"
	SourceNone          SourceType = "none"
)

const (
	GreetingText = "Hello! I'm your post-discharge care assistant. What's your name?"
	ApologyText  = "Sorry, I encountered an error. Please try again."
)

// Turn is one transcript entry. Turns are never edited once appended.
type Turn struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Agent      Agent      `json:"agent,omitempty"`
	Citations  []string   `json:"citations,omitempty"`
	SourceType SourceType `json:"source_type,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (t Turn) IsAssistant() bool { return t.Role == RoleAssistant }

func (t Turn) clone() Turn {
	t.Citations = slices.Clone(t.Citations)
	return t
}

// AgentLabel is the display name for the turn's agent.
func (t Turn) AgentLabel() string {
	switch t.Agent {
	case "":
		return ""
	case AgentReceptionist:
		return "Receptionist"
	default:
		return "Clinical Agent"
	}
}

// Snapshot is a deep copy of the controller state handed to renderers.
type Snapshot struct {
	SessionID string `json:"session_id,omitempty"`
	Turns     []Turn `json:"turns"`
	Awaiting  bool   `json:"awaiting"`
	Input     string `json:"input"`
	// Version increases with every state change.
	Version uint64 `json:"version"`
}

func (s Snapshot) HasSession() bool { return s.SessionID != "" }

// Last returns the most recent turn.
func (s Snapshot) Last() Turn {
	return s.Turns[len(s.Turns)-1]
}
