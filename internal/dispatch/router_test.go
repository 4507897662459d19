package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/opsmesh/conductor/internal/authz"
	"github.com/opsmesh/conductor/internal/logging"
	"github.com/opsmesh/conductor/internal/observe"
	"github.com/opsmesh/conductor/internal/registry"
	"github.com/opsmesh/conductor/internal/reqctx"
)

// fakeResolver serves a fixed catalog.
type fakeResolver struct {
	agents  map[string]registry.AgentDescriptor
	loadErr error
}

func (f *fakeResolver) Resolve(agentID string) (registry.AgentDescriptor, error) {
	if f.loadErr != nil {
		return registry.AgentDescriptor{}, f.loadErr
	}
	a, ok := f.agents[agentID]
	if !ok {
		return registry.AgentDescriptor{}, fmt.Errorf("%w: %s", registry.ErrUnknownAgent, agentID)
	}
	return a, nil
}

// fakeGate returns a fixed decision and counts invocations.
type fakeGate struct {
	decision authz.Decision
	calls    int
}

func (f *fakeGate) Authorize(ctx context.Context, caller, agentID string) authz.Decision {
	f.calls++
	return f.decision
}

// fakeCaller records executed calls.
type fakeCaller struct {
	response string
	err      error
	calls    []string
	lastRC   reqctx.Context
}

func (f *fakeCaller) Execute(ctx context.Context, agent registry.AgentDescriptor, payload string, rc reqctx.Context) (string, error) {
	f.calls = append(f.calls, agent.ID)
	f.lastRC = rc
	return f.response, f.err
}

// chanSink delivers published events to a channel for synchronization.
type chanSink struct {
	events chan observe.Event
}

func newChanSink() *chanSink {
	return &chanSink{events: make(chan observe.Event, 8)}
}

func (s *chanSink) Publish(e observe.Event) {
	s.events <- e
}

func (s *chanSink) wait(t *testing.T) observe.Event {
	t.Helper()
	select {
	case e := <-s.events:
		return e
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return observe.Event{}
	}
}

func testLogger() *logging.Logger {
	l := logging.New()
	l.SetLevel(logging.LevelError)
	return l
}

func testRouter(resolver *fakeResolver, gate *fakeGate, caller *fakeCaller, sink observe.Sink) *Router {
	return NewRouter(resolver, gate, caller, sink, testLogger())
}

func catalogWith(ids ...string) *fakeResolver {
	agents := make(map[string]registry.AgentDescriptor)
	for _, id := range ids {
		agents[id] = registry.AgentDescriptor{ID: id, Endpoint: "http://" + id + ".internal"}
	}
	return &fakeResolver{agents: agents}
}

func TestRoute_Success(t *testing.T) {
	gate := &fakeGate{decision: authz.Decision{Allowed: true}}
	caller := &fakeCaller{response: "done"}
	sink := newChanSink()
	router := testRouter(catalogWith("monitoring_specialist"), gate, caller, sink)

	rc := reqctx.New("sess-1", "sre@example.com", "tok")
	result, err := router.Route(context.Background(), "monitoring_specialist", "check error rates", rc)
	if err != nil {
		t.Fatalf("route error: %v", err)
	}
	if result.Response != "done" {
		t.Errorf("unexpected response: %s", result.Response)
	}
	if gate.calls != 1 {
		t.Errorf("expected 1 gate call, got %d", gate.calls)
	}
	// Context propagates to the caller unchanged.
	if caller.lastRC.Credential() != "tok" || caller.lastRC.SessionID() != "sess-1" {
		t.Error("request context not propagated to the agent call")
	}

	e := sink.wait(t)
	if e.Outcome != "success" || e.AgentID != "monitoring_specialist" {
		t.Errorf("unexpected event: %+v", e)
	}
}

// An unknown agent short-circuits before the gate and before any network call.
func TestRoute_UnknownAgent(t *testing.T) {
	gate := &fakeGate{decision: authz.Decision{Allowed: true}}
	caller := &fakeCaller{}
	router := testRouter(catalogWith("monitoring_specialist"), gate, caller, observe.NopSink{})

	_, err := router.Route(context.Background(), "nonexistent_agent", "payload", reqctx.New("", "sre@example.com", ""))
	if KindOf(err) != KindUnknownAgent {
		t.Fatalf("expected unknown_agent, got %v", err)
	}
	if gate.calls != 0 {
		t.Error("gate must not be consulted for unknown agents")
	}
	if len(caller.calls) != 0 {
		t.Error("no network call may be made for unknown agents")
	}
}

func TestRoute_RegistryUnavailable(t *testing.T) {
	resolver := &fakeResolver{loadErr: registry.ErrUnavailable}
	gate := &fakeGate{decision: authz.Decision{Allowed: true}}
	caller := &fakeCaller{}
	router := testRouter(resolver, gate, caller, observe.NopSink{})

	_, err := router.Route(context.Background(), "monitoring_specialist", "payload", reqctx.New("", "sre@example.com", ""))
	if KindOf(err) != KindRegistryUnavailable {
		t.Fatalf("expected registry_unavailable, got %v", err)
	}
	if len(caller.calls) != 0 {
		t.Error("dispatch must fail closed when the catalog is unavailable")
	}
}

// A denial carries the gate's reason and prevents the agent call.
func TestRoute_AuthorizationDenied(t *testing.T) {
	gate := &fakeGate{decision: authz.Decision{Allowed: false, Reason: "not in allowlist"}}
	caller := &fakeCaller{}
	router := testRouter(catalogWith("gcloud_infrastructure_specialist"), gate, caller, observe.NopSink{})

	_, err := router.Route(context.Background(), "gcloud_infrastructure_specialist", "payload",
		reqctx.New("", "outsider@example.com", ""))
	if KindOf(err) != KindAuthorizationDenied {
		t.Fatalf("expected authorization_denied, got %v", err)
	}
	var derr *Error
	if !errors.As(err, &derr) || derr.Reason != "not in allowlist" {
		t.Errorf("expected gate reason to surface, got %v", err)
	}
	if len(caller.calls) != 0 {
		t.Error("denied dispatch must not reach the agent")
	}
}

func TestRoute_DelegationFailure(t *testing.T) {
	gate := &fakeGate{decision: authz.Decision{Allowed: true}}
	caller := &fakeCaller{err: errors.New("connection refused")}
	sink := newChanSink()
	router := testRouter(catalogWith("monitoring_specialist"), gate, caller, sink)

	_, err := router.Route(context.Background(), "monitoring_specialist", "payload",
		reqctx.New("", "sre@example.com", ""))
	if KindOf(err) != KindDelegationFailure {
		t.Fatalf("expected delegation_failure, got %v", err)
	}

	e := sink.wait(t)
	if e.Outcome != string(KindDelegationFailure) {
		t.Errorf("expected failure event, got %+v", e)
	}
	if e.Reason == "" {
		t.Error("failure event should carry a reason")
	}
}

func TestRoute_EmptyAgentID(t *testing.T) {
	gate := &fakeGate{decision: authz.Decision{Allowed: true}}
	caller := &fakeCaller{}
	router := testRouter(catalogWith(), gate, caller, observe.NopSink{})

	_, err := router.Route(context.Background(), "", "payload", reqctx.New("", "sre@example.com", ""))
	if KindOf(err) != KindInvalidInput {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}

// A panicking sink must not affect the routing outcome.
type panicSink struct{}

func (panicSink) Publish(observe.Event) { panic("broken sink") }

func TestRoute_SinkPanicDoesNotFailRouting(t *testing.T) {
	gate := &fakeGate{decision: authz.Decision{Allowed: true}}
	caller := &fakeCaller{response: "ok"}
	router := testRouter(catalogWith("monitoring_specialist"), gate, caller, panicSink{})

	result, err := router.Route(context.Background(), "monitoring_specialist", "payload",
		reqctx.New("", "sre@example.com", ""))
	if err != nil {
		t.Fatalf("route error: %v", err)
	}
	if result.Response != "ok" {
		t.Errorf("unexpected response: %s", result.Response)
	}
	time.Sleep(10 * time.Millisecond) // let the publish goroutine run
}
