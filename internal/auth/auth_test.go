package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalIssuerRoundTrip(t *testing.T) {
	issuer := NewLocalIssuer("0123456789abcdef0123", time.Hour)
	tok, err := issuer.Issue("Alice")
	require.NoError(t, err)
	assert.Equal(t, "bearer", tok.TokenType)
	assert.Equal(t, 3600, tok.ExpiresIn)

	id, err := issuer.Verify(context.Background(), tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "local:alice", id.Subject)
	assert.Equal(t, "Alice", id.Username)
}

func TestLocalIssuerRejectsForeignAndExpiredTokens(t *testing.T) {
	issuer := NewLocalIssuer("0123456789abcdef0123", time.Hour)
	other := NewLocalIssuer("another-secret-entirely", time.Hour)
	tok, err := other.Issue("mallory")
	require.NoError(t, err)
	_, err = issuer.Verify(context.Background(), tok.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Verify(context.Background(), "totally.invalid.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	past := NewLocalIssuer("0123456789abcdef0123", time.Minute)
	past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := past.Issue("alice")
	require.NoError(t, err)
	_, err = issuer.Verify(context.Background(), old.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=2$"))
	assert.True(t, VerifyPassword("correct horse", hash))
	assert.False(t, VerifyPassword("wrong horse", hash))
	assert.False(t, VerifyPassword("correct horse", "$argon2id$broken"))

	_, err = HashPassword("short")
	assert.ErrorIs(t, err, ErrWeakPassword)

	again, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again, "salted")
}

func TestSupabaseVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "c0ffee",
			"email":         "alice@example.org",
			"user_metadata": map[string]string{"username": "alice"},
		})
	}))
	defer srv.Close()

	client := NewSupabaseClient(srv.URL+"/", "anon")
	id, err := client.Verify(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "supabase:c0ffee", id.Subject)
	assert.Equal(t, "alice", id.Username)
	assert.Equal(t, "alice@example.org", id.Email)

	_, err = client.Verify(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSupabaseLoginBadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	_, err := NewSupabaseClient(srv.URL, "anon").Login(context.Background(), "a@b.c", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSupabaseSignUpAwaitingConfirmation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/signup", r.URL.Path)
		var in struct {
			Data map[string]string `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "bar_man", in.Data["username"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "beef",
			"email":         "bar@example.org",
			"user_metadata": map[string]string{"username": "bar_man"},
		})
	}))
	defer srv.Close()

	s, err := NewSupabaseClient(srv.URL, "anon").SignUp(context.Background(), "bar@example.org", "longenough", "bar_man")
	require.NoError(t, err)
	assert.Empty(t, s.AccessToken)
	assert.Equal(t, "beef", s.User.ID)
	assert.Equal(t, "bar_man", s.User.Metadata.Username)
}

func TestSupabaseErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":422,"msg":"Password should be at least 6 characters"}`))
	}))
	defer srv.Close()

	_, err := NewSupabaseClient(srv.URL, "anon").Login(context.Background(), "a@b.c", "x")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Password should be at least 6 characters"), err.Error())
}
