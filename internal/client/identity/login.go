package identity

import (
	"context"
	"fmt"
)

// PasswordLogin authenticates with email and password. On success the returned
// credentials feed the session store exactly like a confirmed handshake.
func (c *Client) PasswordLogin(ctx context.Context, email, password string) (AuthResponse, error) {
	var resp AuthResponse
	err := c.postJSON(ctx, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("password login: %w", err)
	}
	return resp, nil
}

// Register creates a new account. Registration does not log the user in; the
// caller follows up with PasswordLogin.
func (c *Client) Register(ctx context.Context, name, email, password string) error {
	err := c.postJSON(ctx, "/api/v1/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, nil)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}
