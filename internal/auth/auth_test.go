package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/fooddelivery/internal/domain"
	"github.com/vladislavdragonenkov/fooddelivery/internal/storage/memory"
)

func TestNewTokensRequiresSecret(t *testing.T) {
	_, err := NewTokens("  ")
	require.ErrorIs(t, err, ErrSecretRequired)
}

func TestTokensSignAndVerify(t *testing.T) {
	tokens, err := NewTokens("secret")
	require.NoError(t, err)

	token, err := tokens.Sign("user-1")
	require.NoError(t, err)

	userID, err := tokens.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)
}

func TestTokensVerifyRejects(t *testing.T) {
	tokens, err := NewTokens("secret")
	require.NoError(t, err)
	other, err := NewTokens("other-secret")
	require.NoError(t, err)

	foreign, err := other.Sign("user-1")
	require.NoError(t, err)

	noID, err := tokens.Sign("")
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"id": "user-1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tokens.Verify("")
	require.ErrorIs(t, err, ErrMissingToken)

	for name, raw := range map[string]string{
		"garbage":      "not-a-jwt",
		"wrong secret": foreign,
		"empty id":     noID,
		"alg none":     unsigned,
	} {
		_, err := tokens.Verify(raw)
		require.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestTokensExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	tokens, err := NewTokens("secret", WithTTL(time.Minute), WithClock(clock))
	require.NoError(t, err)

	token, err := tokens.Sign("user-1")
	require.NoError(t, err)

	_, err = tokens.Verify(token)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = tokens.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

type failingUsers struct{}

func (failingUsers) Create(context.Context, domain.User) error { return nil }
func (failingUsers) Get(context.Context, string) (domain.User, error) {
	return domain.User{}, errors.New("db down")
}

func TestAuthenticator(t *testing.T) {
	ctx := context.Background()
	tokens, err := NewTokens("secret")
	require.NoError(t, err)

	users := memory.NewUserRepository()
	require.NoError(t, users.Create(ctx, domain.User{ID: "owner-1", Email: "o@example.com", Role: domain.RoleOwner}))

	authenticator := NewAuthenticator(tokens, users, nil)

	token, err := tokens.Sign("owner-1")
	require.NoError(t, err)
	user, err := authenticator.Authenticate(ctx, token)
	require.NoError(t, err)
	require.Equal(t, domain.RoleOwner, user.Role)

	ghost, err := tokens.Sign("ghost")
	require.NoError(t, err)
	_, err = authenticator.Authenticate(ctx, ghost)
	require.ErrorIs(t, err, ErrUnknownUser)
	require.True(t, IsUnauthenticated(err))

	_, err = authenticator.Authenticate(ctx, "")
	require.True(t, IsUnauthenticated(err))

	broken := NewAuthenticator(tokens, failingUsers{}, nil)
	_, err = broken.Authenticate(ctx, token)
	require.Error(t, err)
	require.False(t, IsUnauthenticated(err))
}

func TestUserContextAndRoles(t *testing.T) {
	_, ok := UserFromContext(context.Background())
	require.False(t, ok)

	driver := domain.User{ID: "driver-1", Role: domain.RoleDelivery}
	ctx := WithUser(context.Background(), driver)
	got, ok := UserFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, driver, got)

	require.True(t, HasRole(driver))
	require.True(t, HasRole(driver, domain.RoleOwner, domain.RoleDelivery))
	require.False(t, HasRole(driver, domain.RoleClient))
}
