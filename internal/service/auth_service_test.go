package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanportal/userhub/internal/model"
	"loanportal/userhub/internal/repository"
	jwtpkg "loanportal/userhub/pkg/jwt"
)

type authFixture struct {
	svc   AuthService
	repo  repository.UserRepository
	store repository.StateStore
	jwt   *jwtpkg.Manager
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	f := &authFixture{
		repo:  repository.NewMemoryUserRepository(),
		store: repository.NewMemoryStateStore(),
		jwt:   jwtpkg.NewManager("test-signing-key", "loanportal", 15*time.Minute, time.Hour),
	}
	f.svc = NewAuthService(f.repo, f.store, f.jwt)
	return f
}

func (f *authFixture) seedUser(t *testing.T, userID string) *model.UserRecord {
	t.Helper()
	u := &model.UserRecord{UserID: userID, Name: userID, Email: userID + "@x.com"}
	require.NoError(t, f.repo.Create(context.Background(), u))
	return u
}

func TestAuthService_IssueTokenSet(t *testing.T) {
	f := newAuthFixture(t)
	u := f.seedUser(t, "user_1")

	tokens, err := f.svc.IssueTokenSet(context.Background(), u)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.EqualValues(t, 900, tokens.ExpiresIn)

	claims, err := f.jwt.Validate(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user_1", claims.Subject)
	assert.Equal(t, jwtpkg.TokenTypeAccess, claims.TokenType)
	assert.Equal(t, string(model.UserRoleUser), claims.Role)
}

func TestAuthService_IssueTokenSetRejectsInactive(t *testing.T) {
	f := newAuthFixture(t)
	u := f.seedUser(t, "user_1")
	u.Status = model.UserStatusSuspended

	_, err := f.svc.IssueTokenSet(context.Background(), u)
	assert.ErrorIs(t, err, ErrUserDisabled)
}

func TestAuthService_RefreshRotates(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	u := f.seedUser(t, "user_1")

	first, err := f.svc.IssueTokenSet(ctx, u)
	require.NoError(t, err)

	second, err := f.svc.RefreshToken(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = f.svc.RefreshToken(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenInvalid, "a refresh token is single use")

	_, err = f.svc.RefreshToken(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestAuthService_RefreshRejectsAccessToken(t *testing.T) {
	f := newAuthFixture(t)
	u := f.seedUser(t, "user_1")
	tokens, err := f.svc.IssueTokenSet(context.Background(), u)
	require.NoError(t, err)

	_, err = f.svc.RefreshToken(context.Background(), tokens.AccessToken)
	assert.ErrorIs(t, err, ErrRefreshTokenInvalid)

	_, err = f.svc.RefreshToken(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrRefreshTokenInvalid)
}

func TestAuthService_RefreshAfterSoftDelete(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	u := f.seedUser(t, "user_1")
	tokens, err := f.svc.IssueTokenSet(ctx, u)
	require.NoError(t, err)

	require.NoError(t, f.repo.SoftDelete(ctx, "user_1"))

	_, err = f.svc.RefreshToken(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrUserDisabled)
}

func TestAuthService_Logout(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	u := f.seedUser(t, "user_1")
	tokens, err := f.svc.IssueTokenSet(ctx, u)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, tokens.RefreshToken))

	_, err = f.svc.RefreshToken(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrRefreshTokenInvalid)
}

func TestAuthService_CurrentUser(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.seedUser(t, "user_1")

	got, err := f.svc.CurrentUser(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, "user_1", got.UserID)

	inactive := model.UserStatusInactive
	_, err = f.repo.UpdateByUserID(ctx, "user_1", repository.UserPatch{Status: &inactive})
	require.NoError(t, err)
	_, err = f.svc.CurrentUser(ctx, "user_1")
	assert.ErrorIs(t, err, ErrUserDisabled)

	_, err = f.svc.CurrentUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserDisabled)
}
