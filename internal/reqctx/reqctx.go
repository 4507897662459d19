// Package reqctx carries per-request session and identity state.
//
// A Context is built once at the request boundary and threaded as an
// explicit parameter through every downstream call the request triggers.
// It is never stored globally and never persisted beyond the request.
package reqctx

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Context is the per-request session/identity context. The zero value is
// usable and represents an anonymous request with no session.
type Context struct {
	sessionID  string
	caller     string
	credential string
}

// New constructs a Context from inbound fields. An empty sessionID is
// replaced with a freshly generated one so every request is correlatable.
func New(sessionID, caller, credential string) Context {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return Context{
		sessionID:  sessionID,
		caller:     caller,
		credential: credential,
	}
}

// FromRequest builds a Context from an inbound HTTP request, extracting
// the bearer credential from the Authorization header if present.
func FromRequest(r *http.Request, sessionID, caller string) Context {
	return New(sessionID, caller, BearerToken(r))
}

// BearerToken extracts the bearer credential from a request's
// Authorization header, or returns empty if absent or malformed.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return auth[len(prefix):]
	}
	return ""
}

// SessionID returns the session identifier.
func (c Context) SessionID() string { return c.sessionID }

// Caller returns the caller identity (email/subject), or empty if the
// request carried none.
func (c Context) Caller() string { return c.caller }

// Credential returns the upstream bearer credential. It must be forwarded
// unchanged on every delegated call and must never be logged.
func (c Context) Credential() string { return c.credential }

// HasCredential reports whether the request carried a bearer credential.
func (c Context) HasCredential() bool { return c.credential != "" }

// ApplyAuth sets the Authorization header on an outbound request when a
// credential is present. The credential is forwarded verbatim; conductor
// never mints or substitutes credentials.
func (c Context) ApplyAuth(req *http.Request) {
	if c.credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.credential)
	}
}

// String returns a log-safe rendering. The credential is reduced to a
// presence marker.
func (c Context) String() string {
	cred := "absent"
	if c.credential != "" {
		cred = "present"
	}
	return "session=" + c.sessionID + " caller=" + c.caller + " credential=" + cred
}
