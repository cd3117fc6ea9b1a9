// Package guard decides whether a protected view renders, waits or redirects, based only on
// the current session state.
package guard

import (
	"context"

	"github.com/and161185/eventdesk/internal/session"
)

// Status is the outcome of an evaluation.
type Status int

const (
	// Pending means the session has not settled yet: show a placeholder, never redirect.
	Pending Status = iota
	// Denied means the requirement is not met: redirect.
	Denied
	// Granted means the protected view may render.
	Granted
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Denied:
		return "denied"
	case Granted:
		return "granted"
	}
	return "unknown"
}

// Redirect targets.
const (
	LoginPath = "/login"
	HomePath  = "/"
)

// Requirement is what a protected view needs.
type Requirement struct {
	Admin bool
	// NotAdmin sends administrators to the login page; enrolment is for participants only.
	NotAdmin bool
}

var (
	Authenticated = Requirement{}
	AdminOnly     = Requirement{Admin: true}
	Participant   = Requirement{NotAdmin: true}
)

// Decision is the guard's verdict. Redirect is set only when Status is Denied.
type Decision struct {
	Status   Status
	Redirect string
}

// Evaluate is the pure three-state decision.
func Evaluate(st session.State, req Requirement) Decision {
	switch {
	case st.Loading:
		return Decision{Status: Pending}
	case !st.IsAuthenticated:
		return Decision{Status: Denied, Redirect: LoginPath}
	case req.Admin && !st.IsAdmin:
		return Decision{Status: Denied, Redirect: HomePath}
	case req.NotAdmin && st.IsAdmin:
		return Decision{Status: Denied, Redirect: LoginPath}
	default:
		return Decision{Status: Granted}
	}
}

// Source is the part of *session.Store the guard reads.
type Source interface {
	State() session.State
	Settled() <-chan struct{}
}

// Guard holds no state of its own; every call re-reads the source.
type Guard struct {
	src Source
}

func New(src Source) *Guard { return &Guard{src: src} }

// Check evaluates req against the current state.
func (g *Guard) Check(req Requirement) Decision {
	return Evaluate(g.src.State(), req)
}

// Wait blocks until the session settles, then evaluates req.
func (g *Guard) Wait(ctx context.Context, req Requirement) (Decision, error) {
	select {
	case <-g.src.Settled():
		return g.Check(req), nil
	case <-ctx.Done():
		return Decision{Status: Pending}, ctx.Err()
	}
}
