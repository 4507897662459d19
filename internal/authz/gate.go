// Package authz gates every delegation behind the policy-evaluation service.
package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opsmesh/conductor/internal/logging"
)

// DefaultTimeout bounds a single policy decision.
const DefaultTimeout = 5 * time.Second

// Decision is the outcome of one authorization check. Decisions are
// produced fresh per call and never cached: policy can change between
// requests, and a stale allow is a security hazard.
type Decision struct {
	Allowed bool
	Reason  string
}

// Gate authorizes a caller identity against a target agent.
type Gate interface {
	Authorize(ctx context.Context, caller, agentID string) Decision
}

// PolicyGate queries an external policy-evaluation service over HTTP.
//
// The gate is fail-closed: any error reaching the service (timeout,
// transport failure, non-2xx status, malformed response) yields a deny
// whose reason identifies the service error. It never fails open.
type PolicyGate struct {
	url     string
	token   string
	timeout time.Duration
	client  *http.Client
	logger  *logging.Logger
}

// Option configures a PolicyGate.
type Option func(*PolicyGate)

// WithTimeout overrides the default decision timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *PolicyGate) { g.timeout = d }
}

// WithToken sets the service credential sent on decision requests.
func WithToken(token string) Option {
	return func(g *PolicyGate) { g.token = token }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *PolicyGate) { g.client = c }
}

// NewPolicyGate creates a gate backed by the policy service at url.
func NewPolicyGate(url string, logger *logging.Logger, opts ...Option) *PolicyGate {
	g := &PolicyGate{
		url:     url,
		timeout: DefaultTimeout,
		client:  &http.Client{},
		logger:  logger.WithComponent("authz"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// decisionRequest is the wire request to the policy service.
type decisionRequest struct {
	CallerIdentity string `json:"caller_identity"`
	TargetAgentID  string `json:"target_agent_id"`
}

// decisionResponse is the wire response from the policy service.
type decisionResponse struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason"`
}

// Authorize evaluates (caller, agentID) against the policy service.
func (g *PolicyGate) Authorize(ctx context.Context, caller, agentID string) Decision {
	// Requests with no caller identity are denied without a service
	// round-trip. Anonymous is never implicitly allowed.
	if caller == "" {
		d := Decision{Allowed: false, Reason: "no caller identity on request"}
		g.logger.AuthzDecision(caller, agentID, d.Allowed, d.Reason)
		return d
	}

	d := g.evaluate(ctx, caller, agentID)
	if !d.Allowed && d.Reason == "" {
		d.Reason = "denied by policy"
	}
	g.logger.AuthzDecision(caller, agentID, d.Allowed, d.Reason)
	return d
}

// evaluate performs the HTTP round-trip. Every failure path returns a deny.
func (g *PolicyGate) evaluate(ctx context.Context, caller, agentID string) Decision {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, err := json.Marshal(decisionRequest{
		CallerIdentity: caller,
		TargetAgentID:  agentID,
	})
	if err != nil {
		return deny("policy request encoding failed: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return deny("policy request build failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return deny("policy service unreachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return deny("policy service returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return deny("policy response read failed: %v", err)
	}

	var dr decisionResponse
	if err := json.Unmarshal(data, &dr); err != nil {
		return deny("policy response malformed: %v", err)
	}

	return Decision{Allowed: dr.Allow, Reason: dr.Reason}
}

// deny builds a fail-closed decision with a formatted reason.
func deny(format string, args ...interface{}) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}
