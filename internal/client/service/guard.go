package service

import (
	"net/url"
	"sync"
)

// GuardState is the per-mounted-view decision.
type GuardState string

const (
	GuardChecking    GuardState = "checking"
	GuardAuthorized  GuardState = "authorized"
	GuardRedirecting GuardState = "redirecting"
)

// Guard gates one mounted view on the current session. A guard either lets the
// view render or redirects; it never does both, and it never errors. An
// unreadable session is simply unauthenticated, which is the safe default.
type Guard struct {
	Session *SessionService

	// RequireAuth redirects unauthenticated users to the login view.
	// PublicOnly redirects authenticated users away (login/register screens).
	RequireAuth bool
	PublicOnly  bool

	// LoginPath is where require-auth redirects go; the current path rides
	// along as a return target. DefaultPath is where public-only redirects
	// land when no return target was carried in.
	LoginPath   string
	DefaultPath string

	// CurrentPath supplies the mounted view's own path (with any carried
	// return target), for building redirect destinations.
	CurrentPath func() string

	// OnRedirect performs the navigation. Redirects are silent: redirecting
	// is the intended outcome, not an error.
	OnRedirect func(dest string)

	mu          sync.Mutex
	state       GuardState
	unsubscribe func()
}

// Mount evaluates the guard and subscribes it to session changes so a login
// or logout re-gates the view without a reload.
func (g *Guard) Mount() {
	g.mu.Lock()
	g.state = GuardChecking
	g.mu.Unlock()

	g.unsubscribe = g.Session.Subscribe(g.evaluate)
	g.evaluate()
}

// Unmount detaches the guard from the session store. Safe to call twice.
func (g *Guard) Unmount() {
	if g.unsubscribe != nil {
		g.unsubscribe()
		g.unsubscribe = nil
	}
}

// State returns the current decision.
func (g *Guard) State() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Authorized reports whether the view may render its children.
func (g *Guard) Authorized() bool {
	return g.State() == GuardAuthorized
}

// evaluate recomputes the decision. Idempotent: repeated notifications that do
// not change the outcome neither re-redirect nor flip an Authorized view, so
// there are no redirect loops.
func (g *Guard) evaluate() {
	authenticated := g.Session.IsAuthenticated()

	var (
		next GuardState
		dest string
	)
	switch {
	case g.RequireAuth && !authenticated:
		next = GuardRedirecting
		dest = g.loginDestination()
	case g.PublicOnly && authenticated:
		next = GuardRedirecting
		dest = g.returnDestination()
	default:
		next = GuardAuthorized
	}

	g.mu.Lock()
	if g.state == next {
		g.mu.Unlock()
		return
	}
	g.state = next
	g.mu.Unlock()

	if next == GuardRedirecting && g.OnRedirect != nil {
		g.OnRedirect(dest)
	}
}

// loginDestination points at the login view with the current path carried as
// the return target, so login can put the user back where they were.
func (g *Guard) loginDestination() string {
	current := ""
	if g.CurrentPath != nil {
		current = g.CurrentPath()
	}
	if current == "" {
		return g.LoginPath
	}
	return g.LoginPath + "?redirect=" + url.QueryEscape(current)
}

// returnDestination unwraps a carried return target, falling back to the
// default destination.
func (g *Guard) returnDestination() string {
	if g.CurrentPath != nil {
		if u, err := url.Parse(g.CurrentPath()); err == nil {
			if target := u.Query().Get("redirect"); target != "" {
				return target
			}
		}
	}
	if g.DefaultPath != "" {
		return g.DefaultPath
	}
	return "/"
}
