package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const localIssuer = "cafe-api"

type localClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// LocalIssuer signs and checks tokens for username/password accounts.
type LocalIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewLocalIssuer(secret string, ttl time.Duration) *LocalIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &LocalIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func LocalSubject(username string) string {
	return "local:" + strings.ToLower(strings.TrimSpace(username))
}

func (l *LocalIssuer) Issue(username string) (Token, error) {
	now := l.now()
	claims := &localClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   LocalSubject(username),
			Issuer:    localIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(l.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{
		AccessToken: signed,
		TokenType:   "bearer",
		ExpiresIn:   int(l.ttl.Seconds()),
		Username:    username,
	}, nil
}

func (l *LocalIssuer) Verify(_ context.Context, accessToken string) (Identity, error) {
	claims := &localClaims{}
	token, err := jwt.ParseWithClaims(accessToken, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return l.secret, nil
	}, jwt.WithIssuer(localIssuer), jwt.WithTimeFunc(l.now))
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.Subject == "" || claims.Username == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{Subject: claims.Subject, Username: claims.Username}, nil
}
