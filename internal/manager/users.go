package manager

import (
	"context"

	"github.com/chatmesh/chatmesh/internal/apperr"
	"github.com/chatmesh/chatmesh/internal/credentials"
)

// Register validates input, hashes the password, and inserts the user.
func (m *Manager) Register(ctx context.Context, pepper, userID, password, name string) error {
	if userID == "" || name == "" {
		return apperr.New(apperr.Validate, "user_id and name must not be empty")
	}
	if password == "" {
		return apperr.New(apperr.Validate, "password must not be empty")
	}

	hash, err := credentials.Hash(password, pepper)
	if err != nil {
		return apperr.Wrap(apperr.Validate, "hash password", err)
	}
	return m.Store.CreateUser(ctx, userID, name, hash)
}

// LoginResult carries the long-lived user token issued on success.
type LoginResult struct {
	Token string `json:"token"`
}

// Login verifies the password and, on success, issues a 24h user token.
func (m *Manager) Login(ctx context.Context, pepper, userID, password string) (LoginResult, error) {
	u, err := m.Store.GetUser(ctx, userID)
	if err != nil {
		return LoginResult{}, err
	}

	ok, err := credentials.Verify(u.PasswordHash, password, pepper)
	if err != nil {
		return LoginResult{}, apperr.Wrap(apperr.DbError, "verify password hash", err)
	}
	if !ok {
		return LoginResult{}, apperr.New(apperr.InvalidPassword, "incorrect password")
	}

	tok, err := m.Tokens.IssueUserToken(userID)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: tok}, nil
}
