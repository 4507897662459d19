// Package dispatch routes inbound tasks to specialist agents.
//
// Every routed call passes the same pre-checks in order: registry
// resolution first, then the authorization gate, and only then the
// network call. Nothing in this package retries; retry policy belongs to
// the caller.
package dispatch

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opsmesh/conductor/internal/authz"
	"github.com/opsmesh/conductor/internal/logging"
	"github.com/opsmesh/conductor/internal/observe"
	"github.com/opsmesh/conductor/internal/registry"
	"github.com/opsmesh/conductor/internal/reqctx"
)

// Resolver looks up agents in the catalog. *registry.Registry satisfies
// it; tests substitute fakes.
type Resolver interface {
	Resolve(agentID string) (registry.AgentDescriptor, error)
}

// Result is the outcome of one successful routed call.
type Result struct {
	AgentID  string        // Target agent that handled the call
	Response string        // Agent's success payload
	Duration time.Duration // Wall time of the delegated call
}

// Router resolves, authorizes, and issues delegated calls.
type Router struct {
	resolver Resolver
	gate     authz.Gate
	caller   AgentCaller
	sink     observe.Sink
	logger   *logging.Logger
	tracer   trace.Tracer
}

// NewRouter wires a router from its collaborators. A nil sink disables
// event reporting.
func NewRouter(resolver Resolver, gate authz.Gate, caller AgentCaller, sink observe.Sink, logger *logging.Logger) *Router {
	if sink == nil {
		sink = observe.NopSink{}
	}
	return &Router{
		resolver: resolver,
		gate:     gate,
		caller:   caller,
		sink:     sink,
		logger:   logger.WithComponent("dispatch"),
		tracer:   otel.Tracer("conductor/dispatch"),
	}
}

// Route issues one delegated call to the target agent.
//
// Pre-check failures (unknown agent, unavailable registry, denied
// authorization) return before any network call to the agent. Transport
// failures and non-success agent responses surface as delegation
// failures and are not retried here.
func (r *Router) Route(ctx context.Context, agentID, payload string, rc reqctx.Context) (Result, error) {
	start := time.Now()

	ctx, span := r.tracer.Start(ctx, "dispatch.route")
	span.SetAttributes(
		attribute.String("dispatch.agent", agentID),
		attribute.String("dispatch.session", rc.SessionID()),
	)
	defer span.End()

	if agentID == "" {
		return r.fail(span, rc, start, agentID, Errf(KindInvalidInput, "target agent id is required"))
	}

	r.logger.WithSession(rc.SessionID()).DispatchStart(agentID)

	agent, err := r.resolver.Resolve(agentID)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrUnavailable):
			return r.fail(span, rc, start, agentID, Errf(KindRegistryUnavailable, "agent catalog unavailable: %v", err))
		default:
			return r.fail(span, rc, start, agentID, Errf(KindUnknownAgent, "no such agent: %s", agentID))
		}
	}

	decision := r.gate.Authorize(ctx, rc.Caller(), agentID)
	if !decision.Allowed {
		return r.fail(span, rc, start, agentID, Errf(KindAuthorizationDenied, "%s", decision.Reason))
	}

	response, err := r.caller.Execute(ctx, agent, payload, rc)
	duration := time.Since(start)
	if err != nil {
		return r.fail(span, rc, start, agentID, Errf(KindDelegationFailure, "delegation to %s failed: %v", agentID, err))
	}

	span.SetAttributes(attribute.String("dispatch.outcome", "success"))
	r.logger.WithSession(rc.SessionID()).DispatchComplete(agentID, duration, "success")
	r.report(observe.Event{
		Component:  "dispatch",
		AgentID:    agentID,
		SessionID:  rc.SessionID(),
		Outcome:    "success",
		DurationMs: duration.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	})

	return Result{AgentID: agentID, Response: response, Duration: duration}, nil
}

// fail records a failed routing decision on the span, the log, and the
// sink, then returns the taxonomy error.
func (r *Router) fail(span trace.Span, rc reqctx.Context, start time.Time, agentID string, derr *Error) (Result, error) {
	duration := time.Since(start)
	span.SetAttributes(attribute.String("dispatch.outcome", string(derr.Kind)))
	span.RecordError(derr)
	r.logger.WithSession(rc.SessionID()).DispatchComplete(agentID, duration, string(derr.Kind))
	r.report(observe.Event{
		Component:  "dispatch",
		AgentID:    agentID,
		SessionID:  rc.SessionID(),
		Outcome:    string(derr.Kind),
		Reason:     derr.Reason,
		DurationMs: duration.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	})
	return Result{}, derr
}

// report publishes an event without ever blocking or failing the routing
// outcome.
func (r *Router) report(e observe.Event) {
	go func() {
		defer func() {
			_ = recover() // a broken sink must not take down a request
		}()
		r.sink.Publish(e)
	}()
}
