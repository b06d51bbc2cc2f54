package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"merry/internal/cache"
	"merry/internal/document/model"
	"merry/internal/session"
	"merry/internal/transport"
)

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Name     string `json:"name,omitempty" validate:"omitempty,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type resetPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type authResponse struct {
	User    *model.User      `json:"user"`
	Session *session.Session `json:"session"`
}

// Signup registers a new account. The password must contain at least one
// letter and one number, matching the backend's own rule, so obviously bad
// input never leaves the client.
func (c *Client) Signup(ctx context.Context, email, password, name string) (*session.AuthResult, error) {
	req := signupRequest{Email: email, Password: password, Name: strings.TrimSpace(name)}
	if err := c.validate.Struct(req); err != nil {
		return nil, err
	}
	if !strings.ContainsFunc(password, isLetter) || !strings.ContainsFunc(password, isDigit) {
		return nil, errors.New("password must contain at least one letter and one number")
	}

	resp, err := c.http.Do(ctx, http.MethodPost, "/auth/signup", req)
	if err != nil {
		return nil, err
	}
	return decodeAuthResult(resp)
}

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*session.AuthResult, error) {
	req := loginRequest{Email: email, Password: password}
	if err := c.validate.Struct(req); err != nil {
		return nil, err
	}
	resp, err := c.http.Do(ctx, http.MethodPost, "/auth/login", req)
	if err != nil {
		return nil, err
	}
	return decodeAuthResult(resp)
}

// Logout tells the backend to revoke the session. Best-effort, never retried.
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.http.Do(ctx, http.MethodPost, "/auth/logout", nil, transport.WithoutRetry())
	if err != nil {
		return err
	}
	return transport.Decode(resp, nil)
}

// Refresh exchanges a refresh token for a new session. Never retried: a
// refresh failure must surface immediately so the session layer can sign out.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*session.AuthResult, error) {
	resp, err := c.http.Do(ctx, http.MethodPost, "/auth/refresh", refreshRequest{RefreshToken: refreshToken}, transport.WithoutRetry())
	if err != nil {
		return nil, err
	}
	return decodeAuthResult(resp)
}

// Me fetches the current user, cached briefly.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	if v, ok := c.cache.Get(cache.KeyCurrentUser); ok {
		user := v.(model.User)
		return &user, nil
	}
	resp, err := c.http.Do(ctx, http.MethodGet, "/auth/me", nil, transport.WithoutRetry())
	if err != nil {
		return nil, err
	}
	var user model.User
	if err := transport.Decode(resp, &user); err != nil {
		return nil, err
	}
	c.cache.Set(cache.KeyCurrentUser, user)
	return &user, nil
}

// ResetPassword requests a password reset email. Never retried.
func (c *Client) ResetPassword(ctx context.Context, email string) error {
	req := resetPasswordRequest{Email: email}
	if err := c.validate.Struct(req); err != nil {
		return err
	}
	resp, err := c.http.Do(ctx, http.MethodPost, "/auth/reset-password", req, transport.WithoutRetry())
	if err != nil {
		return err
	}
	return transport.Decode(resp, nil)
}

func decodeAuthResult(resp *transport.Response) (*session.AuthResult, error) {
	var out authResponse
	if err := transport.Decode(resp, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, errors.New("auth response missing user")
	}
	return &session.AuthResult{User: out.User, Session: out.Session}, nil
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
