package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"loanportal/userhub/internal/config"
	"loanportal/userhub/internal/model"
	"loanportal/userhub/internal/repository"
	"loanportal/userhub/internal/service"
	jwtpkg "loanportal/userhub/pkg/jwt"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router *gin.Engine
	jwt    *jwtpkg.Manager
	repo   repository.UserRepository
	auth   service.AuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server: config.ServerConfig{Mode: "test"},
		Admin:  config.AdminConfig{UserIDs: []string{"bootstrap"}},
	}
	logger := zaptest.NewLogger(t)
	jwtManager := jwtpkg.NewManager("test-signing-key", "loanportal", 15*time.Minute, time.Hour)
	repo := repository.NewMemoryUserRepository()
	store := repository.NewMemoryStateStore()

	identitySvc := service.NewIdentityService(repo, logger, service.IdentityOptions{})
	authSvc := service.NewAuthService(repo, store, jwtManager)
	oauth2Svc := service.NewOAuth2Service(cfg.OAuth2, store, identitySvc, authSvc, logger)

	router := SetupRouter(cfg, logger, jwtManager,
		NewAuthHandler(authSvc, oauth2Svc),
		NewAdminHandler(service.NewUserService(repo)),
	)
	return &testServer{router: router, jwt: jwtManager, repo: repo, auth: authSvc}
}

func (s *testServer) token(t *testing.T, userID string, role model.UserRole) string {
	t.Helper()
	tok, err := s.jwt.GenerateAccessToken(jwtpkg.Identity{UserID: userID, Role: string(role)})
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w, _ := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAdminUsers_CRUD(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, "admin_1", model.UserRoleAdmin)

	w, env := s.do(t, http.MethodPost, "/api/v1/admin/users", admin, CreateUserRequest{
		UserID: "user_1", Name: "Alice", Email: "a@x.com",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 0, env.Code)

	w, env = s.do(t, http.MethodGet, "/api/v1/admin/users/user_1", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var user model.UserRecord
	require.NoError(t, json.Unmarshal(env.Data, &user))
	assert.Equal(t, "Alice", user.Name)
	assert.Equal(t, model.UserRoleUser, user.Role)
	assert.Equal(t, model.UserStatusActive, user.Status)

	w, env = s.do(t, http.MethodPatch, "/api/v1/admin/users/user_1", admin, map[string]string{"status": "inactive"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &user))
	assert.Equal(t, model.UserStatusInactive, user.Status)
	assert.Equal(t, "Alice", user.Name)

	w, _ = s.do(t, http.MethodDelete, "/api/v1/admin/users/user_1", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(t, http.MethodGet, "/api/v1/admin/users/user_1", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 404, env.Code)

	w, _ = s.do(t, http.MethodDelete, "/api/v1/admin/users/user_1", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminUsers_List(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	admin := s.token(t, "admin_1", model.UserRoleAdmin)
	for _, id := range []string{"user_1", "user_2"} {
		require.NoError(t, s.repo.Create(ctx, &model.UserRecord{UserID: id, Name: id, Email: id + "@x.com"}))
	}
	require.NoError(t, s.repo.SoftDelete(ctx, "user_1"))

	var users []model.UserRecord
	_, env := s.do(t, http.MethodGet, "/api/v1/admin/users", admin, nil)
	require.NoError(t, json.Unmarshal(env.Data, &users))
	require.Len(t, users, 1)
	assert.Equal(t, "user_2", users[0].UserID)

	_, env = s.do(t, http.MethodGet, "/api/v1/admin/users?include_deleted=true", admin, nil)
	require.NoError(t, json.Unmarshal(env.Data, &users))
	assert.Len(t, users, 2)
}

func TestAdminUsers_ErrorMapping(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, "admin_1", model.UserRoleAdmin)
	req := CreateUserRequest{UserID: "user_1", Name: "Alice", Email: "a@x.com"}

	w, _ := s.do(t, http.MethodPost, "/api/v1/admin/users", admin, req)
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := s.do(t, http.MethodPost, "/api/v1/admin/users", admin, req)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 409, env.Code)

	w, env = s.do(t, http.MethodPost, "/api/v1/admin/users", admin, CreateUserRequest{UserID: "user_2", Name: "Bob"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, env.Message, "email")

	w, _ = s.do(t, http.MethodPatch, "/api/v1/admin/users/nobody", admin, map[string]string{"name": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminUsers_Authorization(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodGet, "/api/v1/admin/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/admin/users", s.token(t, "user_1", model.UserRoleUser), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/admin/users", s.token(t, "bootstrap", model.UserRoleUser), nil)
	assert.Equal(t, http.StatusOK, w.Code, "allow-listed ids are admins")

	refresh, _, err := s.jwt.GenerateRefreshToken(jwtpkg.Identity{UserID: "admin_1", Role: string(model.UserRoleAdmin)})
	require.NoError(t, err)
	w, _ = s.do(t, http.MethodGet, "/api/v1/admin/users", refresh, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "refresh tokens are not access tokens")
}

func TestMe(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	require.NoError(t, s.repo.Create(ctx, &model.UserRecord{UserID: "user_1", Name: "Alice", Email: "a@x.com"}))

	w, env := s.do(t, http.MethodGet, "/api/v1/me", s.token(t, "user_1", model.UserRoleUser), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var user model.UserRecord
	require.NoError(t, json.Unmarshal(env.Data, &user))
	assert.Equal(t, "user_1", user.UserID)

	require.NoError(t, s.repo.SoftDelete(ctx, "user_1"))
	w, _ = s.do(t, http.MethodGet, "/api/v1/me", s.token(t, "user_1", model.UserRoleUser), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRefreshAndLogout(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	u := &model.UserRecord{UserID: "user_1", Name: "Alice", Email: "a@x.com"}
	require.NoError(t, s.repo.Create(ctx, u))
	tokens, err := s.auth.IssueTokenSet(ctx, u)
	require.NoError(t, err)

	w, env := s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", RefreshRequest{RefreshToken: tokens.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	var rotated service.TokenSet
	require.NoError(t, json.Unmarshal(env.Data, &rotated))
	assert.NotEmpty(t, rotated.AccessToken)

	w, _ = s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", RefreshRequest{RefreshToken: tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/auth/logout", rotated.AccessToken, LogoutRequest{RefreshToken: rotated.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", RefreshRequest{RefreshToken: rotated.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOAuth2_UnconfiguredProvider(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodGet, "/api/v1/auth/oauth2/google/authorize", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/v1/auth/oauth2/google/callback", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
