// Package remediation drives multi-step remediation runs across
// specialist agents.
package remediation

import (
	"time"

	"github.com/opsmesh/conductor/internal/reqctx"
)

// Phase identifies one stage of a remediation run.
type Phase string

const (
	PhaseStart       Phase = "START"
	PhaseInfraFix    Phase = "INFRA_FIX"
	PhaseValidate    Phase = "VALIDATE"
	PhaseBrowserTest Phase = "BROWSER_TEST"
	PhaseReport      Phase = "REPORT"
	PhaseDone        Phase = "DONE"
	PhaseAborted     Phase = "ABORTED"
)

// Status is the aggregate outcome of a finished run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
	StatusAborted Status = "aborted"
)

// StepOutcome records how one delegation ended.
type StepOutcome struct {
	Success  bool   `json:"success"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// DelegationStep is one completed delegation within a run. Steps are
// appended in execution order and never rewritten; the order is part of
// the persisted record.
type DelegationStep struct {
	Phase     Phase       `json:"phase"`
	AgentID   string      `json:"agent_id"`
	Payload   string      `json:"payload"`
	Outcome   StepOutcome `json:"outcome"`
	Timestamp time.Time   `json:"timestamp"`
}

// State is the full state of one remediation run. It is owned exclusively
// by the single execution driving the run and discarded once the terminal
// response has been returned.
type State struct {
	RunID          string
	RCADocument    string
	ResolutionPlan string
	Context        reqctx.Context

	Steps    []DelegationStep
	Phase    Phase
	Terminal bool
	Status   Status
	Reason   string
}

// append records a completed delegation. The step list is append-only.
func (s *State) append(step DelegationStep) {
	s.Steps = append(s.Steps, step)
}

// stepsFor returns the recorded steps for one phase.
func stepsFor(steps []DelegationStep, phase Phase) []DelegationStep {
	var out []DelegationStep
	for _, st := range steps {
		if st.Phase == phase {
			out = append(out, st)
		}
	}
	return out
}

// phaseSucceeded reports whether the phase was attempted and its last
// recorded step succeeded.
func phaseSucceeded(steps []DelegationStep, phase Phase) (attempted, succeeded bool) {
	ph := stepsFor(steps, phase)
	if len(ph) == 0 {
		return false, false
	}
	return true, ph[len(ph)-1].Outcome.Success
}

// AggregateStatus computes the final status from a completed step list.
// It is a pure function of the steps: replaying a recorded run yields the
// same status the live run computed.
//
// Rules: success requires VALIDATE to have succeeded and INFRA_FIX, if
// attempted, to have succeeded. A failed INFRA_FIX is fatal. Failures in
// VALIDATE or BROWSER_TEST degrade the outcome; both failing means the
// fix was never confirmed at all. REPORT never changes the outcome.
func AggregateStatus(steps []DelegationStep) Status {
	infraAttempted, infraOK := phaseSucceeded(steps, PhaseInfraFix)
	if infraAttempted && !infraOK {
		return StatusAborted
	}

	validateAttempted, validateOK := phaseSucceeded(steps, PhaseValidate)
	browserAttempted, browserOK := phaseSucceeded(steps, PhaseBrowserTest)

	switch {
	case !validateAttempted:
		// The run never reached validation.
		return StatusAborted
	case validateOK && (!browserAttempted || browserOK):
		return StatusSuccess
	case validateOK || (browserAttempted && browserOK):
		// One verification signal failed, the other held.
		return StatusPartial
	case browserAttempted:
		// Both validation and browser verification failed.
		return StatusFailed
	default:
		return StatusPartial
	}
}
