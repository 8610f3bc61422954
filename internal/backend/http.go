package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ent0n29/carecompanion/internal/chat"
	"github.com/ent0n29/carecompanion/internal/protocol"
)

const maxResponseBytes = 1 << 20

// HTTPTransport posts each message to the backend chat endpoint.
type HTTPTransport struct {
	url    string
	client *http.Client
}

// NewHTTPTransport uses client, or a client without its own timeout when nil;
// exchanges are bounded by the caller's context.
func NewHTTPTransport(url string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{
		url:    strings.TrimSpace(url),
		client: client,
	}
}

func (t *HTTPTransport) Send(ctx context.Context, req chat.Request) (chat.Reply, error) {
	payload, err := json.Marshal(protocol.NewChatRequest(req.SessionID, req.Message))
	if err != nil {
		return chat.Reply{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return chat.Reply{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	res, err := t.client.Do(httpReq)
	if err != nil {
		return chat.Reply{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return chat.Reply{}, &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return chat.Reply{}, fmt.Errorf("read response: %w", err)
	}
	resp, err := protocol.DecodeChatResponse(body)
	if err != nil {
		return chat.Reply{}, err
	}
	return toReply(resp), nil
}
