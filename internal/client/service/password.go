package service

import (
	"context"
	"log/slog"

	"github.com/membuddy/linkauth/internal/client/identity"
)

// PasswordService is the conventional login path. It is not part of the
// handshake state machine but feeds the session store identically on success.
type PasswordService struct {
	Identity *identity.Client
	Session  *SessionService
	Logger   *slog.Logger
}

// Login authenticates with email and password and writes the session.
func (p *PasswordService) Login(ctx context.Context, email, password string) error {
	resp, err := p.Identity.PasswordLogin(ctx, email, password)
	if err != nil {
		return err
	}

	user := resp.User
	p.Session.SetSession(&user, resp.Token, resp.RefreshToken)
	p.Logger.Info("password login succeeded", "user_id", user.ID)
	return nil
}

// Register creates an account, then logs in with the same credentials.
func (p *PasswordService) Register(ctx context.Context, name, email, password string) error {
	if err := p.Identity.Register(ctx, name, email, password); err != nil {
		return err
	}
	return p.Login(ctx, email, password)
}
