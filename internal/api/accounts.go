package api

import (
	"context"
	"errors"
	"strings"

	"cafe/internal/auth"
	"cafe/internal/game"
)

var errSignupRejected = errors.New("signup rejected")

// Credentials is the body of signup and login. Local accounts use Username;
// Supabase accounts use Email, with Username as the café name on signup.
type Credentials struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Accounts creates and signs in players for one auth backend.
type Accounts interface {
	SignUp(ctx context.Context, in Credentials) (auth.Token, error)
	Login(ctx context.Context, in Credentials) (auth.Token, error)
}

// LocalAccounts keeps password hashes in the players table and issues its own
// tokens.
type LocalAccounts struct {
	Game   *game.Service
	Issuer *auth.LocalIssuer
}

func (a LocalAccounts) SignUp(ctx context.Context, in Credentials) (auth.Token, error) {
	username := strings.TrimSpace(in.Username)
	if err := game.ValidateUsername(username); err != nil {
		return auth.Token{}, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return auth.Token{}, err
	}
	u, err := a.Game.RegisterLocal(ctx, username, hash)
	if err != nil {
		return auth.Token{}, err
	}
	return a.Issuer.Issue(u.Username)
}

func (a LocalAccounts) Login(ctx context.Context, in Credentials) (auth.Token, error) {
	u, err := a.Game.Credentials(ctx, in.Username)
	if errors.Is(err, game.ErrNotFound) {
		// Same answer as a wrong password.
		return auth.Token{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return auth.Token{}, err
	}
	if u.PasswordHash == "" || !auth.VerifyPassword(in.Password, u.PasswordHash) {
		return auth.Token{}, auth.ErrInvalidCredentials
	}
	return a.Issuer.Issue(u.Username)
}

// SupabaseAccounts delegates to Supabase and opens the café on first sight.
type SupabaseAccounts struct {
	Game   *game.Service
	Client *auth.SupabaseClient
}

func (a SupabaseAccounts) SignUp(ctx context.Context, in Credentials) (auth.Token, error) {
	username := strings.TrimSpace(in.Username)
	if username != "" {
		if err := game.ValidateUsername(username); err != nil {
			return auth.Token{}, err
		}
	}
	session, err := a.Client.SignUp(ctx, strings.TrimSpace(in.Email), in.Password, username)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return auth.Token{}, errSignupRejected
	}
	if err != nil {
		return auth.Token{}, err
	}
	if session.User.ID == "" {
		// Email confirmation pending; the player row appears on first login.
		return session.Token(), nil
	}
	caller, err := a.Game.EnsurePlayer(ctx, auth.SupabaseSubject(session.User.ID), session.User.Email, username)
	if err != nil {
		return auth.Token{}, err
	}
	tok := session.Token()
	tok.Username = caller.Username
	return tok, nil
}

func (a SupabaseAccounts) Login(ctx context.Context, in Credentials) (auth.Token, error) {
	session, err := a.Client.Login(ctx, strings.TrimSpace(in.Email), in.Password)
	if err != nil {
		return auth.Token{}, err
	}
	caller, err := a.Game.EnsurePlayer(ctx, auth.SupabaseSubject(session.User.ID), session.User.Email, session.User.Metadata.Username)
	if err != nil {
		return auth.Token{}, err
	}
	tok := session.Token()
	tok.Username = caller.Username
	return tok, nil
}
