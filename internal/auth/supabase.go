package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SupabaseClient talks to the GoTrue endpoints of a Supabase project.
type SupabaseClient struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

// Session is a GoTrue token grant. AccessToken is empty after a signup that
// still waits for email confirmation.
type Session struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int          `json:"expires_in"`
	TokenType    string       `json:"token_type"`
	User         SupabaseUser `json:"user"`
}

type SupabaseUser struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Metadata struct {
		Username string `json:"username"`
	} `json:"user_metadata"`
}

// SupabaseSubject namespaces Supabase user ids so they never collide with
// local accounts.
func SupabaseSubject(id string) string {
	return "supabase:" + id
}

func (s Session) Token() Token {
	return Token{AccessToken: s.AccessToken, TokenType: s.TokenType, ExpiresIn: s.ExpiresIn, Username: s.User.Metadata.Username}
}

func NewSupabaseClient(baseURL, anonKey string) *SupabaseClient {
	return &SupabaseClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SignUp registers an account; the chosen café name travels as user metadata.
func (c *SupabaseClient) SignUp(ctx context.Context, email, password, username string) (Session, error) {
	// With confirmations on, GoTrue answers with the bare user instead of a session.
	var out struct {
		Session
		SupabaseUser
	}
	err := c.call(ctx, http.MethodPost, "/auth/v1/signup", "", map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"username": username},
	}, &out)
	if err != nil {
		return Session{}, err
	}
	s := out.Session
	if s.User.ID == "" {
		s.User = out.SupabaseUser
	}
	return s, nil
}

func (c *SupabaseClient) Login(ctx context.Context, email, password string) (Session, error) {
	var out Session
	err := c.call(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	return out, err
}

// Verify asks Supabase who owns accessToken.
func (c *SupabaseClient) Verify(ctx context.Context, accessToken string) (Identity, error) {
	var user SupabaseUser
	if err := c.call(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &user); err != nil {
		return Identity{}, err
	}
	if user.ID == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{Subject: SupabaseSubject(user.ID), Email: user.Email, Username: user.Metadata.Username}, nil
}

// call sends one GoTrue request. A 400/401/403 answer becomes ErrInvalidToken
// when a bearer token was sent and ErrInvalidCredentials otherwise.
func (c *SupabaseClient) call(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.anonKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("supabase %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		if bearer != "" {
			return ErrInvalidToken
		}
		return ErrInvalidCredentials
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("supabase status %d: %s", resp.StatusCode, goTrueMessage(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode supabase response: %w", err)
	}
	return nil
}

func goTrueMessage(raw []byte) string {
	var payload struct {
		Msg         string `json:"msg"`
		Description string `json:"error_description"`
		Error       string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		for _, m := range []string{payload.Msg, payload.Description, payload.Error} {
			if m != "" {
				return m
			}
		}
	}
	return strings.TrimSpace(string(raw))
}
