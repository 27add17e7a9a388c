// Package ui is the terminal surface of the auth client. The root model owns
// routing: each route mounts a guard over the session, and guard redirects
// drive navigation the same way a login or logout does.
package ui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/membuddy/linkauth/internal/client/app"
	"github.com/membuddy/linkauth/internal/client/service"
)

const (
	loginPath = "/login"
	homePath  = "/home"
)

// handshakeEventMsg is one step of the cross-device login, re-issued from the
// orchestrator's event stream.
type handshakeEventMsg service.Event

// sessionChangedMsg fires whenever the session store notifies.
type sessionChangedMsg struct{}

// navigateMsg switches the mounted route. Guard redirects arrive this way.
type navigateMsg struct{ path string }

// loginResultMsg carries the outcome of a password login or registration.
type loginResultMsg struct{ err error }

// Root is the top-level Bubbletea model.
type Root struct {
	app *app.Application

	path  string
	guard *service.Guard
	login loginModel
	home  homeModel

	// nav carries guard redirects and other async navigation into the event
	// loop. sessionCh does the same for session change notifications.
	nav       chan string
	sessionCh chan struct{}

	width  int
	height int
}

// NewRoot builds the UI over an initialized application and mounts the
// starting route.
func NewRoot(a *app.Application) Root {
	r := Root{
		app:       a,
		nav:       make(chan string, 8),
		sessionCh: make(chan struct{}, 8),
		login:     newLoginModel(a),
		home:      newHomeModel(a),
	}

	a.Session.Subscribe(func() {
		select {
		case r.sessionCh <- struct{}{}:
		default:
		}
	})

	start := loginPath
	if a.Session.IsAuthenticated() {
		start = homePath
	}
	r, _ = r.navigate(start)
	return r
}

func (r Root) Init() tea.Cmd {
	// The initial route was mounted in NewRoot; Init only arms the readers.
	return tea.Batch(r.waitForNav(), r.waitForSession(), r.waitForHandshake())
}

func (r Root) onLogin() bool {
	return strings.HasPrefix(r.path, loginPath)
}

// waitForNav blocks on the navigation channel and re-issues itself.
func (r Root) waitForNav() tea.Cmd {
	nav := r.nav
	return func() tea.Msg { return navigateMsg{path: <-nav} }
}

func (r Root) waitForSession() tea.Cmd {
	ch := r.sessionCh
	return func() tea.Msg { <-ch; return sessionChangedMsg{} }
}

func (r Root) waitForHandshake() tea.Cmd {
	events := r.app.Handshake.Events()
	return func() tea.Msg { return handshakeEventMsg(<-events) }
}

// navigate unmounts the current route and mounts the target one. Mounting the
// guard may immediately push a redirect back onto the nav channel; the caller
// keeps draining it.
func (r Root) navigate(path string) (Root, tea.Cmd) {
	if path == r.path {
		return r, nil
	}

	if r.guard != nil {
		r.guard.Unmount()
	}
	if r.onLogin() {
		r.login = r.login.leave()
	}

	r.path = path
	current := path
	redirect := func(dest string) {
		select {
		case r.nav <- dest:
		default:
		}
	}

	if r.onLogin() {
		r.guard = &service.Guard{
			Session:     r.app.Session,
			PublicOnly:  true,
			DefaultPath: homePath,
			CurrentPath: func() string { return current },
			OnRedirect:  redirect,
		}
	} else {
		r.guard = &service.Guard{
			Session:     r.app.Session,
			RequireAuth: true,
			LoginPath:   loginPath,
			CurrentPath: func() string { return current },
			OnRedirect:  redirect,
		}
	}
	r.guard.Mount()

	if r.onLogin() && r.guard.Authorized() {
		return r, r.login.enter()
	}
	return r, nil
}

func (r Root) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		r.width = msg.Width
		r.height = msg.Height
		return r, nil

	case navigateMsg:
		var cmd tea.Cmd
		r, cmd = r.navigate(msg.path)
		return r, tea.Batch(cmd, r.waitForNav())

	case sessionChangedMsg:
		// The guard already re-evaluated; this cycle just re-renders.
		return r, r.waitForSession()

	case handshakeEventMsg:
		var cmd tea.Cmd
		if r.onLogin() {
			r.login, cmd = r.login.Update(msg)
		}
		return r, tea.Batch(cmd, r.waitForHandshake())

	case loginResultMsg:
		var cmd tea.Cmd
		r.login, cmd = r.login.Update(msg)
		return r, cmd

	case tea.KeyMsg:
		if !r.editing() {
			switch msg.String() {
			case "q", "ctrl+c":
				return r, tea.Quit
			}
		} else if msg.String() == "ctrl+c" {
			return r, tea.Quit
		}
	}

	var cmd tea.Cmd
	if r.onLogin() {
		r.login, cmd = r.login.Update(msg)
	} else {
		r.home, cmd = r.home.Update(msg)
	}
	return r, cmd
}

func (r Root) editing() bool {
	return r.onLogin() && r.login.formFocused()
}

func (r Root) View() string {
	route := "home"
	if r.onLogin() {
		route = "login"
	}
	header := "  " + titleStyle.Render("M E M B U D D Y") + "  " +
		metaStyle.Render(route)

	var body, help string
	if r.onLogin() {
		body = r.login.View()
		help = r.login.helpKeys()
	} else {
		if !r.guard.Authorized() {
			body = "\n  " + dimStyle.Render("checking session...")
			help = " " + helpEntry("q", "quit")
		} else {
			body = r.home.View()
			help = r.home.helpKeys()
		}
	}

	return header + "\n" + body + "\n" + help
}
