package session

import (
	"time"

	"github.com/ent0n29/carecompanion/internal/agents"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Session is the dev backend's view of one conversation.
type Session struct {
	ID                string       `json:"session_id"`
	Status            Status       `json:"status"`
	PatientName       string       `json:"patient_name,omitempty"`
	CurrentAgent      agents.Agent `json:"current_agent,omitempty"`
	HandoffToClinical bool         `json:"handoff_to_clinical"`
	TurnCount         int          `json:"turn_count"`
	StartedAt         time.Time    `json:"started_at"`
	LastActivityAt    time.Time    `json:"last_activity_at"`
}

// Exchange is the outcome of one answered message.
type Exchange struct {
	Session *Session
	Result  agents.Result
	// Created is set when the message opened a new session.
	Created bool
}
