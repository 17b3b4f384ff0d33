package auth

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fooddelivery/internal/domain"
)

// ErrUnknownUser: токен валиден, но пользователя нет в хранилище.
var ErrUnknownUser = errors.New("auth user not found")

// Authenticator: Identity Provider: токен → пользователь.
type Authenticator struct {
	tokens *Tokens
	users  domain.UserRepository
	logger *log.Entry
}

// NewAuthenticator связывает проверку токенов с хранилищем пользователей.
func NewAuthenticator(tokens *Tokens, users domain.UserRepository, logger *log.Entry) *Authenticator {
	if logger == nil {
		logger = log.WithField("component", "auth")
	}
	return &Authenticator{tokens: tokens, users: users, logger: logger}
}

// Authenticate проверяет токен и загружает пользователя.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (domain.User, error) {
	userID, err := a.tokens.Verify(token)
	if err != nil {
		return domain.User{}, err
	}

	user, err := a.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.User{}, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
		}
		a.logger.WithError(err).WithField("user_id", userID).Error("failed to load user")
		return domain.User{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	return user, nil
}

var _ domain.Authenticator = (*Authenticator)(nil)

type userContextKey struct{}

// WithUser кладёт аутентифицированного пользователя в контекст.
func WithUser(ctx context.Context, user domain.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext достаёт пользователя, положенного WithUser.
func UserFromContext(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(domain.User)
	return user, ok
}

// HasRole сообщает, входит ли роль пользователя в allowed. Пустой allowed разрешает любую роль.
func HasRole(user domain.User, allowed ...domain.Role) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, role := range allowed {
		if user.Role == role {
			return true
		}
	}
	return false
}

// IsUnauthenticated сообщает, что ошибка означает отсутствие валидной личности,
// а не внутренний сбой.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrMissingToken) || errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrUnknownUser)
}
