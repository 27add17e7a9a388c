package ui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/membuddy/linkauth/internal/client/app"
	"github.com/membuddy/linkauth/internal/client/domain"
	"github.com/membuddy/linkauth/internal/client/service"
)

type loginField int

const (
	fieldEmail loginField = iota
	fieldPassword
	fieldNone
)

// loginModel renders the login route: the cross-device handshake on top and a
// conventional email/password form below it.
type loginModel struct {
	app *app.Application

	// latest handshake event, which is all the QR pane needs to render.
	attempt service.Event

	// stopWatch halts the completion sentinel watcher for the live attempt.
	stopWatch func()

	field      loginField
	email      string
	password   string
	submitting bool
	errMsg     string
}

func newLoginModel(a *app.Application) loginModel {
	return loginModel{app: a, field: fieldNone}
}

// enter starts a fresh handshake attempt for this mount of the view.
func (m loginModel) enter() tea.Cmd {
	m.app.Handshake.Start()
	return nil
}

// leave tears the attempt down so no poller outlives the view.
func (m loginModel) leave() loginModel {
	m.app.Handshake.Cancel()
	if m.stopWatch != nil {
		m.stopWatch()
		m.stopWatch = nil
	}
	m.attempt = service.Event{}
	m.submitting = false
	m.errMsg = ""
	return m
}

func (m loginModel) formFocused() bool {
	return m.field != fieldNone
}

func (m loginModel) Update(msg tea.Msg) (loginModel, tea.Cmd) {
	switch msg := msg.(type) {
	case handshakeEventMsg:
		m.attempt = service.Event(msg)
		switch m.attempt.Status {
		case domain.AttemptAwaitingScan:
			// Arm the cross-navigation channel for the new attempt nonce.
			if m.stopWatch != nil {
				m.stopWatch()
			}
			m.stopWatch = m.app.WatchCompletion(m.attempt.AttemptID)
		case domain.AttemptConfirmed, domain.AttemptFailed:
			if m.stopWatch != nil {
				m.stopWatch()
				m.stopWatch = nil
			}
		}
		return m, nil

	case loginResultMsg:
		m.submitting = false
		if msg.err != nil {
			m.errMsg = msg.err.Error()
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m loginModel) handleKey(msg tea.KeyMsg) (loginModel, tea.Cmd) {
	if m.submitting {
		return m, nil
	}

	switch msg.String() {
	case "tab":
		switch m.field {
		case fieldNone:
			m.field = fieldEmail
		case fieldEmail:
			m.field = fieldPassword
		case fieldPassword:
			m.field = fieldNone
		}
		return m, nil

	case "esc":
		m.field = fieldNone
		return m, nil

	case "enter":
		if m.field == fieldEmail {
			m.field = fieldPassword
			return m, nil
		}
		if m.field == fieldPassword && m.email != "" && m.password != "" {
			m.submitting = true
			m.errMsg = ""
			return m, m.submit()
		}
		return m, nil

	case "r":
		if m.field == fieldNone && m.attempt.Status == domain.AttemptFailed {
			m.errMsg = ""
			return m, m.enter()
		}
	}

	switch m.field {
	case fieldEmail:
		m.email = editRune(m.email, msg.String())
	case fieldPassword:
		m.password = editRune(m.password, msg.String())
	}
	return m, nil
}

func (m loginModel) submit() tea.Cmd {
	a := m.app
	email, password := m.email, m.password
	return func() tea.Msg {
		err := a.Password.Login(context.Background(), email, password)
		return loginResultMsg{err: err}
	}
}

func (m loginModel) View() string {
	var b strings.Builder

	b.WriteString("\n  " + normalStyle.Render("Sign in to MemBuddy") + "\n\n")
	b.WriteString(m.qrPane())
	b.WriteString("\n  " + metaStyle.Render("or sign in with email") + "\n\n")
	b.WriteString(m.formPane())

	if m.errMsg != "" {
		b.WriteString("\n  " + errorStyle.Render(m.errMsg) + "\n")
	}
	return b.String()
}

func (m loginModel) qrPane() string {
	switch m.attempt.Status {
	case domain.AttemptAwaitingScan, domain.AttemptConfirmed:
		var inner strings.Builder
		inner.WriteString(statusWaitStyle.Render("scan with the MemBuddy app") + "\n\n")
		inner.WriteString(normalStyle.Render(m.attempt.QRPayload))
		if m.attempt.ImageAsset != "" {
			inner.WriteString("\n" + metaStyle.Render(
				fmt.Sprintf("(image ready, %d bytes base64)", len(m.attempt.ImageAsset))))
		}
		if m.attempt.Status == domain.AttemptConfirmed {
			inner.Reset()
			inner.WriteString(statusOkStyle.Render("confirmed, signing you in..."))
		}
		return indent(qrFrameStyle.Render(inner.String())) + "\n"

	case domain.AttemptExpired:
		return indent(qrFrameStyle.Render(dimStyle.Render("code expired, fetching a fresh one..."))) + "\n"

	case domain.AttemptFailed:
		reason := m.attempt.ErrorReason
		if reason == "" {
			reason = "login failed"
		}
		return indent(qrFrameStyle.Render(
			errorStyle.Render(reason)+"\n"+helpEntry("r", "try again"))) + "\n"

	default:
		return indent(qrFrameStyle.Render(dimStyle.Render("requesting a login code..."))) + "\n"
	}
}

func (m loginModel) formPane() string {
	email := m.renderField("email", m.email, "you@example.com", m.field == fieldEmail)
	password := m.renderField("password", maskRunes(m.password), "", m.field == fieldPassword)

	out := "  " + email + "\n  " + password + "\n"
	if m.submitting {
		out += "\n  " + dimStyle.Render("signing in...") + "\n"
	}
	return out
}

func (m loginModel) renderField(label, value, placeholder string, focused bool) string {
	prompt := metaStyle.Render(fmt.Sprintf("%-10s", label))
	cursor := ""
	if focused {
		prompt = inputPromptStyle.Render(fmt.Sprintf("%-10s", label))
		cursor = accentStyle.Render("█")
	}
	if value == "" && placeholder != "" && !focused {
		return prompt + inputPlaceholderStyle.Render(placeholder)
	}
	return prompt + normalStyle.Render(value) + cursor
}

func (m loginModel) helpKeys() string {
	if m.formFocused() {
		return " " + helpEntry("tab", "next field") + "  " +
			helpEntry("enter", "submit") + "  " + helpEntry("esc", "back")
	}
	return " " + helpEntry("tab", "email login") + "  " + helpEntry("q", "quit")
}

// indent prefixes every line of a block with two spaces.
func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = "  " + lines[i]
	}
	return strings.Join(lines, "\n")
}
