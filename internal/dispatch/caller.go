package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opsmesh/conductor/internal/registry"
	"github.com/opsmesh/conductor/internal/reqctx"
)

// AgentCaller issues the execute call to a resolved specialist agent.
// Production implementations speak HTTP; tests substitute fakes.
type AgentCaller interface {
	Execute(ctx context.Context, agent registry.AgentDescriptor, payload string, rc reqctx.Context) (string, error)
}

// executeRequest is the wire request to a specialist agent.
type executeRequest struct {
	Prompt    string `json:"prompt"`
	UserEmail string `json:"user_email,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// executeResponse is the wire response from a specialist agent.
type executeResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response,omitempty"`
	Data     string `json:"data,omitempty"`
	Error    string `json:"error,omitempty"`
}

// HTTPAgentCaller calls specialist agents over HTTP. Each call is bounded
// by the configured timeout; a timeout is a failure outcome, never left
// pending.
type HTTPAgentCaller struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPAgentCaller creates a caller with the given per-call timeout.
func NewHTTPAgentCaller(timeout time.Duration) *HTTPAgentCaller {
	return &HTTPAgentCaller{
		client:  &http.Client{},
		timeout: timeout,
	}
}

// Execute POSTs the payload to the agent's execute endpoint, propagating
// the session id, caller identity, and bearer credential unchanged.
func (c *HTTPAgentCaller) Execute(ctx context.Context, agent registry.AgentDescriptor, payload string, rc reqctx.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(executeRequest{
		Prompt:    payload,
		UserEmail: rc.Caller(),
		SessionID: rc.SessionID(),
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := strings.TrimRight(agent.Endpoint, "/") + "/execute"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	rc.ApplyAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", agent.ID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response from %s: %w", agent.ID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%s returned status %d", agent.ID, resp.StatusCode)
	}

	var er executeResponse
	if err := json.Unmarshal(data, &er); err != nil {
		return "", fmt.Errorf("malformed response from %s: %w", agent.ID, err)
	}
	if !er.Success {
		msg := er.Error
		if msg == "" {
			msg = "agent reported failure"
		}
		return "", fmt.Errorf("%s: %s", agent.ID, msg)
	}

	if er.Response != "" {
		return er.Response, nil
	}
	return er.Data, nil
}
