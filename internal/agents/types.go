// Package agents is the stand-in backend brain: a receptionist that identifies
// the patient from their discharge report and a clinical agent that answers
// from a nephrology knowledge base or a web search index.
package agents

import (
	"context"
	"time"
)

type Agent string

const (
	AgentReceptionist Agent = "receptionist"
	AgentClinical     Agent = "clinical"
)

type SourceType string

const (
	SourceWeb           SourceType = "web"
	SourceKnowledgeBase SourceType = "kb"
	SourceNone          SourceType = "none"
)

// Disclaimer closes every clinical reply.
const Disclaimer = "This is an AI assistant for educational purposes only. Always consult healthcare professionals for medical advice."

// Message is one entry of the backend-side conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Agent   Agent  `json:"agent,omitempty"`
}

// State is the per-session conversation state carried between turns.
type State struct {
	Messages          []Message
	Patient           *Patient
	UserName          string
	CurrentAgent      Agent
	HandoffToClinical bool
}

func (s *State) append(role, content string, agent Agent) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Agent: agent})
}

// Result is one answered turn.
type Result struct {
	Reply      string
	Agent      Agent
	Citations  []string
	SourceType SourceType
}

// Patient is a discharge report.
type Patient struct {
	Name                  string    `json:"patient_name" yaml:"patient_name"`
	DischargeDate         time.Time `json:"discharge_date" yaml:"discharge_date"`
	PrimaryDiagnosis      string    `json:"primary_diagnosis" yaml:"primary_diagnosis"`
	Medications           []string  `json:"medications" yaml:"medications"`
	DietaryRestrictions   string    `json:"dietary_restrictions" yaml:"dietary_restrictions"`
	FollowUp              string    `json:"follow_up" yaml:"follow_up"`
	WarningSigns          string    `json:"warning_signs" yaml:"warning_signs"`
	DischargeInstructions string    `json:"discharge_instructions" yaml:"discharge_instructions"`
}

// PatientDirectory finds discharge reports by patient name.
type PatientDirectory interface {
	Lookup(ctx context.Context, name string) (Patient, error)
	Close() error
}

// StageObserver receives per-stage latencies. observability.Metrics satisfies it.
type StageObserver interface {
	ObserveStage(stage string, d time.Duration)
}

type nopStages struct{}

func (nopStages) ObserveStage(string, time.Duration) {}
