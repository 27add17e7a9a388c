package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/membuddy/linkauth/internal/client/device"
	"github.com/membuddy/linkauth/internal/client/domain"
	"github.com/membuddy/linkauth/internal/client/identity"
	"github.com/membuddy/linkauth/internal/client/service"
	"github.com/membuddy/linkauth/internal/client/store"
	"github.com/membuddy/linkauth/internal/client/store/drivers/sqlite"
	"github.com/membuddy/linkauth/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application is the composition root of the auth client. It owns the one
// SessionService instance for the process and the wiring between the
// completion channels and the handshake orchestrator.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db store.Store

	Identity  *identity.Client
	Session   *service.SessionService
	Handshake *service.HandshakeService
	Password  *service.PasswordService
	Bus       *service.MessageBus
	Flags     *service.FlagChannel
}

// New initializes the application: storage, installation id, identity client,
// session store (hydrated), handshake orchestrator and both completion
// channels.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "linkauth",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initStorage(); err != nil {
		return nil, err
	}

	ctx := context.Background()
	deviceID, err := device.EnsureID(ctx, app.db.Device())
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to establish installation id: %w", err)
	}

	app.Identity = identity.NewClient(cfg.UserCenterURL, cfg.AppID, deviceID, app.logger)
	app.Session = service.NewSessionService(app.db, app.logger)
	app.Handshake = service.NewHandshakeService(
		app.Identity,
		app.Session,
		app.db.AssetCache(),
		app.logger,
		service.HandshakeConfig{
			PollInterval:     cfg.PollInterval,
			MaxPollDuration:  cfg.MaxPollDuration,
			MaxExpiryRetries: cfg.MaxExpiryRetries,
			MaxPollFailures:  cfg.MaxPollFailures,
		},
	)
	app.Password = &service.PasswordService{
		Identity: app.Identity,
		Session:  app.Session,
		Logger:   app.logger,
	}
	app.Bus = service.NewMessageBus(cfg.Origin, app.logger)
	app.Flags = service.NewFlagChannel(
		app.db.Sentinels(), app.logger, cfg.FlagPollInterval, cfg.MaxPollDuration,
	)

	// Route accepted bus messages into the handshake state machine. The bus
	// already validated origin and kind; first confirmation wins there too.
	app.Bus.Subscribe(func(msg domain.CompletionMessage) {
		switch msg.Kind {
		case domain.CompletionSuccess:
			app.Handshake.Confirm(msg.AttemptID, msg.User, msg.Token, msg.RefreshToken)
		case domain.CompletionError:
			app.Handshake.Fail(msg.AttemptID, msg.Reason)
		}
	})

	return app, nil
}

// WatchCompletion arms the flag channel for an attempt nonce. The confirming
// navigation persists the session itself before writing the sentinel, so a
// success outcome re-reads the persisted credentials and converges on the
// same Confirm path the poll result uses.
func (a *Application) WatchCompletion(attemptID string) (stop func()) {
	return a.Flags.Watch(attemptID, func(outcome service.Outcome) {
		if !outcome.Success {
			a.Handshake.Fail(attemptID, outcome.Reason)
			return
		}

		session, err := a.db.Credentials().LoadSession(context.Background())
		if err != nil || session.Empty() {
			a.logger.Warn("completion sentinel found but no stored credentials", "attempt_id", attemptID)
			a.Handshake.Fail(attemptID, "login completed elsewhere but credentials were missing")
			return
		}

		a.Handshake.Confirm(attemptID, session.User, session.Token, session.RefreshToken)
	})
}

// Logger returns the application logger for UI surfaces.
func (a *Application) Logger() *slog.Logger { return a.logger }

// Close stops the handshake and releases storage.
func (a *Application) Close() error {
	a.Handshake.Cancel()

	if err := a.db.Close(); err != nil {
		a.logger.Error("error closing storage", "error", err)
		return err
	}
	return nil
}

func (a *Application) initStorage() error {
	db, err := sqlite.NewStore(a.cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to open local storage: %w", err)
	}
	a.db = db

	ctx := context.Background()
	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to reach local storage: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply storage migrations: %w", err)
	}

	// Sweep rendered assets left behind by earlier runs.
	if err := db.AssetCache().DeleteExpired(ctx, time.Now()); err != nil {
		a.logger.Warn("failed to sweep expired assets", "error", err)
	}

	return nil
}
