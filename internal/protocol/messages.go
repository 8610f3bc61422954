package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeChatRequest  MessageType = "chat_request"
	TypeChatResponse MessageType = "chat_response"
	TypeErrorEvent   MessageType = "error_event"
)

var (
	ErrUnsupportedType   = errors.New("unsupported message type")
	ErrMalformedResponse = errors.New("malformed chat response")
)

// ChatRequest is the body of POST /chat. A nil SessionID asks the backend to open a new session.
type ChatRequest struct {
	SessionID *string `json:"session_id"`
	Message   string  `json:"message"`
}

// NewChatRequest encodes an absent session (empty string) as JSON null.
func NewChatRequest(sessionID, message string) ChatRequest {
	req := ChatRequest{Message: message}
	if sessionID != "" {
		req.SessionID = &sessionID
	}
	return req
}

func (r ChatRequest) Session() string {
	if r.SessionID == nil {
		return ""
	}
	return strings.TrimSpace(*r.SessionID)
}

// ChatResponse is the backend reply. Pointer fields detect members missing from the body.
type ChatResponse struct {
	SessionID  *string  `json:"session_id"`
	Reply      *string  `json:"reply"`
	Agent      string   `json:"agent,omitempty"`
	Citations  []string `json:"citations"`
	SourceType string   `json:"source_type,omitempty"`
}

// Validate rejects partial replies; callers never recover field by field.
func (r ChatResponse) Validate() error {
	if r.SessionID == nil || strings.TrimSpace(*r.SessionID) == "" {
		return fmt.Errorf("%w: missing session_id", ErrMalformedResponse)
	}
	if r.Reply == nil {
		return fmt.Errorf("%w: missing reply", ErrMalformedResponse)
	}
	return nil
}

// DecodeChatResponse parses and validates a response body.
func DecodeChatResponse(raw []byte) (ChatResponse, error) {
	var resp ChatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return ChatResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := resp.Validate(); err != nil {
		return ChatResponse{}, err
	}
	return resp, nil
}

type Envelope struct {
	Type MessageType `json:"type"`
	ID   string      `json:"id"`
}

// ChatRequestFrame is a chat request sent over the websocket transport.
type ChatRequestFrame struct {
	Type      MessageType `json:"type"`
	ID        string      `json:"id"`
	SessionID *string     `json:"session_id"`
	Message   string      `json:"message"`
}

// ChatResponseFrame carries a ChatResponse correlated to a request frame ID.
type ChatResponseFrame struct {
	Type       MessageType `json:"type"`
	ID         string      `json:"id"`
	SessionID  *string     `json:"session_id"`
	Reply      *string     `json:"reply"`
	Agent      string      `json:"agent,omitempty"`
	Citations  []string    `json:"citations"`
	SourceType string      `json:"source_type,omitempty"`
}

func (f ChatResponseFrame) Response() ChatResponse {
	return ChatResponse{
		SessionID:  f.SessionID,
		Reply:      f.Reply,
		Agent:      f.Agent,
		Citations:  f.Citations,
		SourceType: f.SourceType,
	}
}

func NewChatResponseFrame(id string, resp ChatResponse) ChatResponseFrame {
	return ChatResponseFrame{
		Type:       TypeChatResponse,
		ID:         id,
		SessionID:  resp.SessionID,
		Reply:      resp.Reply,
		Agent:      resp.Agent,
		Citations:  resp.Citations,
		SourceType: resp.SourceType,
	}
}

// Error codes carried by ErrorEvent and JSON error bodies.
const (
	CodeBadRequest  = "bad_request"
	CodeRateLimited = "rate_limited"
	CodeInternal    = "internal_error"
)

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	ID        string      `json:"id,omitempty"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// ParseClientMessage decodes a frame sent by a chat client.
func ParseClientMessage(raw []byte) (ChatRequestFrame, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ChatRequestFrame{}, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeChatRequest:
		var msg ChatRequestFrame
		if err := json.Unmarshal(raw, &msg); err != nil {
			return ChatRequestFrame{}, err
		}
		if msg.ID == "" || strings.TrimSpace(msg.Message) == "" {
			return ChatRequestFrame{}, errors.New("invalid chat_request")
		}
		return msg, nil
	default:
		return ChatRequestFrame{}, ErrUnsupportedType
	}
}

// ParseServerMessage decodes a frame sent by the backend. It returns either a
// ChatResponseFrame or an ErrorEvent.
func ParseServerMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid envelope: %v", ErrMalformedResponse, err)
	}

	switch env.Type {
	case TypeChatResponse:
		var msg ChatResponseFrame
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return msg, nil
	case TypeErrorEvent:
		var msg ErrorEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
