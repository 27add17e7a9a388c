package main

import (
	"log"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/membuddy/linkauth/internal/client/app"
	"github.com/membuddy/linkauth/internal/client/ui"
)

func main() {
	cfg := app.LoadConfig()

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}
	defer application.Close() //nolint:errcheck

	p := tea.NewProgram(ui.NewRoot(application), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("ui error: %v", err)
	}
}
