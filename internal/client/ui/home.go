package ui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/membuddy/linkauth/internal/client/app"
)

// homeModel is the signed-in landing view. It renders straight off the session
// store, so a session change only needs an Update cycle to show up.
type homeModel struct {
	app *app.Application
}

func newHomeModel(a *app.Application) homeModel {
	return homeModel{app: a}
}

func (m homeModel) Update(msg tea.Msg) (homeModel, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		if key.String() == "ctrl+l" {
			// Logging out re-gates the view; the mounted guard handles the
			// redirect back to login.
			m.app.Session.ClearSession()
		}
	}
	return m, nil
}

func (m homeModel) View() string {
	user := m.app.Session.CurrentUser()
	if user == nil {
		return "\n  " + dimStyle.Render("signed out")
	}

	var b strings.Builder
	b.WriteString("\n  " + statusOkStyle.Render("signed in") + "\n\n")

	name := user.DisplayName
	if name == "" {
		name = user.Email
	}
	b.WriteString("  " + normalStyle.Render(name) + "\n")
	if user.Email != "" && user.Email != name {
		b.WriteString("  " + dimStyle.Render(user.Email) + "\n")
	}
	b.WriteString("  " + metaStyle.Render("id "+user.ID) + "\n")
	return b.String()
}

func (m homeModel) helpKeys() string {
	return " " + helpEntry("ctrl+l", "log out") + "  " + helpEntry("q", "quit")
}
