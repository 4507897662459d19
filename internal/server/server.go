// Package server exposes the orchestration core over HTTP.
package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/opsmesh/conductor/internal/dispatch"
	"github.com/opsmesh/conductor/internal/logging"
	"github.com/opsmesh/conductor/internal/registry"
	"github.com/opsmesh/conductor/internal/remediation"
	"github.com/opsmesh/conductor/internal/reqctx"
)

// Server is the HTTP boundary for the orchestration core.
type Server struct {
	router   *dispatch.Router
	machine  *remediation.Machine
	registry *registry.Registry
	logger   *logging.Logger
	mux      *http.ServeMux
}

// New creates a new Server with all routes registered.
func New(router *dispatch.Router, machine *remediation.Machine, reg *registry.Registry, logger *logging.Logger) *Server {
	s := &Server{
		router:   router,
		machine:  machine,
		registry: reg,
		logger:   logger.WithComponent("server"),
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// routes registers all HTTP routes on the server mux.
func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /v1/agents", s.handleListAgents)
	s.mux.HandleFunc("POST /v1/tasks", s.handleTask)
	s.mux.HandleFunc("POST /v1/remediations", s.handleRemediation)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "conductor",
	})
}

// handleListAgents returns the cached agent catalog.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.registry.All()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "agent catalog unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": agents})
}

// taskRequest is one inbound task.
type taskRequest struct {
	Task        string `json:"task"`
	TargetAgent string `json:"target_agent"`
	Capability  string `json:"capability"`
	SessionID   string `json:"session_id"`
	UserEmail   string `json:"user_email"`
}

// taskResponse is the result of a routed task.
type taskResponse struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	Response  string `json:"response"`
}

// handleTask routes a single task to one specialist agent.
func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Task) == "" {
		writeError(w, http.StatusBadRequest, "task is required")
		return
	}

	target := req.TargetAgent
	if target == "" && req.Capability != "" {
		target = s.selectByCapability(req.Capability)
	}
	if target == "" {
		writeError(w, http.StatusBadRequest, "target_agent or capability is required")
		return
	}

	rc := reqctx.FromRequest(r, req.SessionID, req.UserEmail)

	result, err := s.router.Route(r.Context(), target, req.Task, rc)
	if err != nil {
		s.writeRoutingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, taskResponse{
		SessionID: rc.SessionID(),
		AgentID:   result.AgentID,
		Response:  result.Response,
	})
}

// selectByCapability picks the first cataloged agent declaring the given
// capability tag, or empty if none does.
func (s *Server) selectByCapability(capability string) string {
	agents, err := s.registry.All()
	if err != nil {
		return ""
	}
	for _, a := range agents {
		if a.HasCapability(capability) {
			return a.ID
		}
	}
	return ""
}

// remediationRequest is one inbound remediation run.
type remediationRequest struct {
	RCADocument    string `json:"rca_document"`
	ResolutionPlan string `json:"resolution_plan"`
	SessionID      string `json:"session_id"`
	UserEmail      string `json:"user_email"`
}

// stepSummary is the caller-facing view of one delegation step.
type stepSummary struct {
	Phase     string `json:"phase"`
	AgentID   string `json:"agent_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// remediationResponse is the terminal result of a remediation run.
type remediationResponse struct {
	RunID       string        `json:"run_id"`
	SessionID   string        `json:"session_id"`
	Status      string        `json:"status"`
	Explanation string        `json:"explanation"`
	Steps       []stepSummary `json:"steps"`
}

// handleRemediation drives a full remediation run to its terminal state.
func (s *Server) handleRemediation(w http.ResponseWriter, r *http.Request) {
	var req remediationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	rc := reqctx.FromRequest(r, req.SessionID, req.UserEmail)

	state := s.machine.Run(r.Context(), remediation.Request{
		RCADocument:    req.RCADocument,
		ResolutionPlan: req.ResolutionPlan,
	}, rc)

	status := http.StatusOK
	if state.Status == remediation.StatusAborted && strings.HasPrefix(state.Reason, "invalid input") {
		status = http.StatusBadRequest
	}

	writeJSON(w, status, remediationResponse{
		RunID:       state.RunID,
		SessionID:   rc.SessionID(),
		Status:      string(state.Status),
		Explanation: explain(state),
		Steps:       summarize(state.Steps),
	})
}

// explain renders a human-readable account of the run's outcome.
func explain(state *remediation.State) string {
	if state.Status == remediation.StatusAborted {
		if state.Reason != "" {
			return "run aborted: " + state.Reason
		}
		return "run aborted"
	}

	var parts []string
	for _, step := range state.Steps {
		outcome := "succeeded"
		if !step.Outcome.Success {
			outcome = "failed"
		}
		parts = append(parts, strings.ToLower(string(step.Phase))+" "+outcome)
	}
	return "run " + string(state.Status) + ": " + strings.Join(parts, ", ")
}

// summarize converts delegation steps to their caller-facing form.
func summarize(steps []remediation.DelegationStep) []stepSummary {
	out := make([]stepSummary, 0, len(steps))
	for _, st := range steps {
		out = append(out, stepSummary{
			Phase:     string(st.Phase),
			AgentID:   st.AgentID,
			Success:   st.Outcome.Success,
			Error:     st.Outcome.Error,
			Timestamp: st.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		})
	}
	return out
}

// writeRoutingError maps a routing failure to HTTP status semantics:
// 400 malformed input, 403 authorization denial, 500 everything else.
func (s *Server) writeRoutingError(w http.ResponseWriter, err error) {
	kind := dispatch.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case dispatch.KindInvalidInput, dispatch.KindUnknownAgent:
		status = http.StatusBadRequest
	case dispatch.KindAuthorizationDenied:
		status = http.StatusForbidden
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"kind":    string(kind),
			"message": err.Error(),
		},
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
