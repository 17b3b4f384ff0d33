// Package auth проверяет JWT из заголовка x-jwt и находит по нему пользователя.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HeaderName: заголовок HTTP и ключ gRPC metadata с токеном.
const HeaderName = "x-jwt"

var (
	// ErrMissingToken: запрос без токена.
	ErrMissingToken = errors.New("auth token is missing")
	// ErrInvalidToken: подпись, алгоритм или claims токена не прошли проверку.
	ErrInvalidToken = errors.New("auth token is invalid")
	// ErrSecretRequired: пустой секрет подписи.
	ErrSecretRequired = errors.New("jwt secret is required")
)

type claims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// Tokens подписывает и проверяет HS256-токены с claim id.
type Tokens struct {
	secret []byte
	// ttl=0 выпускает токены без срока действия.
	ttl time.Duration
	now func() time.Time
}

// TokensOption настраивает Tokens.
type TokensOption func(*Tokens)

// WithTTL задаёт срок действия выпускаемых токенов.
func WithTTL(ttl time.Duration) TokensOption {
	return func(t *Tokens) {
		t.ttl = ttl
	}
}

// WithClock подменяет часы (для тестов).
func WithClock(now func() time.Time) TokensOption {
	return func(t *Tokens) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTokens создаёт подписчика токенов.
func NewTokens(secret string, opts ...TokensOption) (*Tokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrSecretRequired
	}
	t := &Tokens{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Sign выпускает токен для пользователя.
func (t *Tokens) Sign(userID string) (string, error) {
	now := t.now()
	registered := jwt.RegisteredClaims{IssuedAt: jwt.NewNumericDate(now)}
	if t.ttl > 0 {
		registered.ExpiresAt = jwt.NewNumericDate(now.Add(t.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{ID: userID, RegisteredClaims: registered})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify проверяет токен и возвращает ID пользователя из claim id.
func (t *Tokens) Verify(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingToken
	}

	parsed := &claims{}
	_, err := jwt.ParseWithClaims(raw, parsed, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("%w: claim id is empty", ErrInvalidToken)
	}
	return parsed.ID, nil
}
