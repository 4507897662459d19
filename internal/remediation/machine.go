package remediation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opsmesh/conductor/internal/dispatch"
	"github.com/opsmesh/conductor/internal/logging"
	"github.com/opsmesh/conductor/internal/reqctx"
)

// Dispatcher issues one delegated call. *dispatch.Router satisfies it;
// tests substitute fakes. Every delegation goes through the router's
// registry and authorization checks; the machine never bypasses them.
type Dispatcher interface {
	Route(ctx context.Context, agentID, payload string, rc reqctx.Context) (dispatch.Result, error)
}

// Agents names the specialist agent for each phase.
type Agents struct {
	InfraFix    string
	Validate    string
	BrowserTest string
	Report      string
}

// DefaultAgents returns the platform's standard phase-to-agent binding.
func DefaultAgents() Agents {
	return Agents{
		InfraFix:    "gcloud_infrastructure_specialist",
		Validate:    "monitoring_specialist",
		BrowserTest: "browser_automation_specialist",
		Report:      "report_storage_specialist",
	}
}

// Request is the input to one remediation run.
type Request struct {
	RCADocument    string
	ResolutionPlan string
}

// Machine drives remediation runs. It holds no cross-run mutable state;
// one Machine serves any number of concurrent runs.
type Machine struct {
	dispatcher Dispatcher
	agents     Agents
	logger     *logging.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewMachine creates a remediation machine.
func NewMachine(dispatcher Dispatcher, agents Agents, logger *logging.Logger) *Machine {
	return &Machine{
		dispatcher: dispatcher,
		agents:     agents,
		logger:     logger.WithComponent("remediation"),
		tracer:     otel.Tracer("conductor/remediation"),
		now:        time.Now,
	}
}

// Run executes one remediation run to a terminal state. Phases execute
// strictly in order; each phase's outcome decides the next. The returned
// state is terminal and owned by the caller.
func (m *Machine) Run(ctx context.Context, req Request, rc reqctx.Context) *State {
	start := m.now()

	state := &State{
		RunID:          uuid.NewString(),
		RCADocument:    req.RCADocument,
		ResolutionPlan: req.ResolutionPlan,
		Context:        rc,
		Phase:          PhaseStart,
	}

	ctx, span := m.tracer.Start(ctx, "remediation.run")
	span.SetAttributes(
		attribute.String("remediation.run", state.RunID),
		attribute.String("remediation.session", rc.SessionID()),
	)
	defer span.End()

	logger := m.logger.WithSession(rc.SessionID())

	// START: both documents are required.
	if strings.TrimSpace(req.RCADocument) == "" || strings.TrimSpace(req.ResolutionPlan) == "" {
		m.abort(state, "invalid input: rca_document and resolution_plan are required")
		span.SetAttributes(attribute.String("remediation.status", string(state.Status)))
		logger.RunComplete(state.RunID, string(state.Status), m.now().Sub(start))
		return state
	}

	intent := analyzePlan(req.ResolutionPlan)

	// INFRA_FIX: fatal on failure. A failed infrastructure mutation needs
	// human review, never an automatic retry.
	if intent.InfraChange {
		if m.cancelled(ctx, state) {
			return m.finish(span, logger, state, start)
		}
		step := m.delegate(ctx, logger, state, PhaseInfraFix, m.agents.InfraFix, m.infraPrompt(state))
		if !step.Outcome.Success {
			m.abort(state, fmt.Sprintf("infrastructure fix failed: %s", step.Outcome.Error))
			return m.finish(span, logger, state, start)
		}
	}

	// VALIDATE: non-fatal. A failed validation is recorded and reflected
	// in the final status, but the pipeline continues.
	if m.cancelled(ctx, state) {
		return m.finish(span, logger, state, start)
	}
	m.delegate(ctx, logger, state, PhaseValidate, m.agents.Validate, m.validatePrompt(state))

	// BROWSER_TEST: only when the plan requests user-facing verification.
	if intent.BrowserTest {
		if m.cancelled(ctx, state) {
			return m.finish(span, logger, state, start)
		}
		m.delegate(ctx, logger, state, PhaseBrowserTest, m.agents.BrowserTest, m.browserPrompt(state))
	}

	// REPORT: best-effort. The outcome is already decided by the phases
	// above; a failed report is recorded but changes nothing.
	if m.cancelled(ctx, state) {
		return m.finish(span, logger, state, start)
	}
	m.delegate(ctx, logger, state, PhaseReport, m.agents.Report, m.reportPrompt(state))

	state.Phase = PhaseDone
	state.Terminal = true
	state.Status = AggregateStatus(state.Steps)
	return m.finish(span, logger, state, start)
}

// delegate routes one phase's call and appends the recorded step.
func (m *Machine) delegate(ctx context.Context, logger *logging.Logger, state *State, phase Phase, agentID, payload string) DelegationStep {
	state.Phase = phase
	phaseStart := m.now()
	logger.PhaseStart(state.RunID, string(phase))

	result, err := m.dispatcher.Route(ctx, agentID, payload, state.Context)

	step := DelegationStep{
		Phase:     phase,
		AgentID:   agentID,
		Payload:   payload,
		Timestamp: m.now(),
	}
	outcome := "success"
	if err != nil {
		step.Outcome = StepOutcome{Success: false, Error: err.Error()}
		outcome = string(dispatch.KindOf(err))
	} else {
		step.Outcome = StepOutcome{Success: true, Response: result.Response}
	}
	state.append(step)

	logger.PhaseComplete(state.RunID, string(phase), m.now().Sub(phaseStart), outcome)
	return step
}

// cancelled checks for caller disconnect or explicit cancellation. An
// in-flight delegation is abandoned by context propagation; mutations
// already issued are not rolled back.
func (m *Machine) cancelled(ctx context.Context, state *State) bool {
	if ctx.Err() == nil {
		return false
	}
	m.abort(state, "cancelled")
	return true
}

// abort moves the run to the ABORTED terminal state.
func (m *Machine) abort(state *State, reason string) {
	state.Phase = PhaseAborted
	state.Terminal = true
	state.Status = StatusAborted
	state.Reason = reason
}

// finish stamps the span and log with the terminal status.
func (m *Machine) finish(span trace.Span, logger *logging.Logger, state *State, start time.Time) *State {
	span.SetAttributes(attribute.String("remediation.status", string(state.Status)))
	logger.RunComplete(state.RunID, string(state.Status), m.now().Sub(start))
	return state
}

// infraPrompt builds the infrastructure-specialist payload.
func (m *Machine) infraPrompt(state *State) string {
	return fmt.Sprintf(
		"Apply the infrastructure change described in this resolution plan.\n\nROOT CAUSE ANALYSIS:\n%s\n\nRESOLUTION PLAN:\n%s",
		state.RCADocument, state.ResolutionPlan)
}

// validatePrompt builds the monitoring-specialist payload.
func (m *Machine) validatePrompt(state *State) string {
	return fmt.Sprintf(
		"Confirm the remediation is observable in monitoring (error rates, latency, alerts recovered).\n\nROOT CAUSE ANALYSIS:\n%s\n\nRESOLUTION PLAN:\n%s",
		state.RCADocument, state.ResolutionPlan)
}

// browserPrompt builds the browser-automation payload.
func (m *Machine) browserPrompt(state *State) string {
	return fmt.Sprintf(
		"Verify the user-facing flows described in the resolution plan work end to end.\n\nRESOLUTION PLAN:\n%s",
		state.ResolutionPlan)
}

// reportPrompt assembles the remediation record for persistence: the RCA,
// the plan, every delegation step, and the outcome so far.
func (m *Machine) reportPrompt(state *State) string {
	record := struct {
		RunID          string           `json:"run_id"`
		RCADocument    string           `json:"rca_document"`
		ResolutionPlan string           `json:"resolution_plan"`
		Steps          []DelegationStep `json:"steps"`
		Status         Status           `json:"status"`
	}{
		RunID:          state.RunID,
		RCADocument:    state.RCADocument,
		ResolutionPlan: state.ResolutionPlan,
		Steps:          state.Steps,
		Status:         AggregateStatus(state.Steps),
	}
	data, err := json.Marshal(record)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"run_id":%q}`, state.RunID))
	}
	return "Persist this remediation record:\n" + string(data)
}
