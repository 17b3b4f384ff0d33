package domain

import (
	"context"
	"time"
)

// Authenticator определяет личность вызывающей стороны по токену.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (User, error)
}

// Clock отдаёт текущее время; подменяется в тестах.
type Clock func() time.Time
