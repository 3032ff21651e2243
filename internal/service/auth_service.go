package service

import (
	"context"
	"errors"
	"fmt"

	"loanportal/userhub/internal/model"
	"loanportal/userhub/internal/repository"
	jwtpkg "loanportal/userhub/pkg/jwt"
)

const refreshKeyPrefix = "refresh_jti:"

// TokenSet represents a set of tokens returned after authentication.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

type AuthService interface {
	// IssueTokenSet signs a session for user and registers its refresh JTI.
	IssueTokenSet(ctx context.Context, user *model.UserRecord) (*TokenSet, error)
	// RefreshToken rotates a refresh token. The presented token is revoked.
	RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error)
	Logout(ctx context.Context, refreshToken string) error
	// CurrentUser loads the active user behind a session subject.
	CurrentUser(ctx context.Context, userID string) (*model.UserRecord, error)
}

type authService struct {
	userRepo   repository.UserRepository
	stateStore repository.StateStore
	jwtManager *jwtpkg.Manager
}

func NewAuthService(
	userRepo repository.UserRepository,
	stateStore repository.StateStore,
	jwtManager *jwtpkg.Manager,
) AuthService {
	return &authService{
		userRepo:   userRepo,
		stateStore: stateStore,
		jwtManager: jwtManager,
	}
}

func (s *authService) IssueTokenSet(ctx context.Context, user *model.UserRecord) (*TokenSet, error) {
	if !user.IsActive() {
		return nil, ErrUserDisabled
	}
	id := jwtpkg.Identity{
		UserID: user.UserID,
		Role:   string(user.Role),
		Email:  user.Email,
	}

	access, err := s.jwtManager.GenerateAccessToken(id)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, claims, err := s.jwtManager.GenerateRefreshToken(id)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	if err := s.stateStore.Set(ctx, refreshKeyPrefix+claims.ID, []byte(user.UserID), s.jwtManager.RefreshTokenTTL()); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &TokenSet{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.jwtManager.AccessTokenTTL().Seconds()),
	}, nil
}

func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	claims, err := s.parseRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	owner, err := s.stateStore.Consume(ctx, refreshKeyPrefix+claims.ID)
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	if owner == nil || string(owner) != claims.Subject {
		return nil, ErrRefreshTokenInvalid
	}

	user, err := s.CurrentUser(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	return s.IssueTokenSet(ctx, user)
}

func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.parseRefresh(refreshToken)
	if err != nil {
		return err
	}
	return s.stateStore.Delete(ctx, refreshKeyPrefix+claims.ID)
}

func (s *authService) CurrentUser(ctx context.Context, userID string) (*model.UserRecord, error) {
	user, err := s.userRepo.FindOne(ctx, repository.UserFilter{UserID: userID})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserDisabled
		}
		return nil, storeError("load user", err)
	}
	if !user.IsActive() {
		return nil, ErrUserDisabled
	}
	return user, nil
}

func (s *authService) parseRefresh(token string) (*jwtpkg.Claims, error) {
	claims, err := s.jwtManager.Validate(token)
	if err != nil || claims.TokenType != jwtpkg.TokenTypeRefresh {
		return nil, ErrRefreshTokenInvalid
	}
	return claims, nil
}

// ensure authService implements AuthService
var _ AuthService = (*authService)(nil)
