package dispatch

import (
	"errors"
	"fmt"
)

// Kind classifies a routing failure. Callers branch on the kind, never on
// message text.
type Kind string

const (
	// KindInvalidInput means a malformed or missing request field. No
	// delegation was attempted.
	KindInvalidInput Kind = "invalid_input"
	// KindUnknownAgent means the target id is not in the registry. No
	// network call was made.
	KindUnknownAgent Kind = "unknown_agent"
	// KindAuthorizationDenied means the gate denied the call, or the gate
	// itself was unreachable (fail-closed). No call to the agent was made.
	KindAuthorizationDenied Kind = "authorization_denied"
	// KindDelegationFailure means the specialist agent call failed:
	// timeout, transport error, or a non-success application response.
	KindDelegationFailure Kind = "delegation_failure"
	// KindRegistryUnavailable means the agent catalog could not be
	// loaded. All dispatch fails closed while this holds.
	KindRegistryUnavailable Kind = "registry_unavailable"
)

// Error is a routing failure with a taxonomy kind and a human-readable
// reason. Raw internal errors are never passed through unformatted.
type Error struct {
	Kind   Kind
	Reason string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// Errf builds an Error with a formatted reason.
func Errf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// KindOf extracts the taxonomy kind from an error, or empty if err is not
// a routing error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
