// Package auth turns bearer tokens into identities. Two backends exist: local
// accounts with self-issued HS256 tokens, and Supabase-hosted accounts.
package auth

import (
	"context"
	"errors"
)

var (
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Identity is who a token belongs to. Subject is stable and unique across
// backends.
type Identity struct {
	Subject  string
	Email    string
	Username string
}

type Authenticator interface {
	Verify(ctx context.Context, accessToken string) (Identity, error)
}

// Token is what signup and login hand back to clients.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Username    string `json:"username,omitempty"`
}
