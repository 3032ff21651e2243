package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"loanportal/userhub/internal/handler/middleware"
	"loanportal/userhub/internal/service"
	"loanportal/userhub/pkg/response"
)

type AuthHandler struct {
	authService   service.AuthService
	oauth2Service service.OAuth2Service
}

func NewAuthHandler(authService service.AuthService, oauth2Service service.OAuth2Service) *AuthHandler {
	return &AuthHandler{authService: authService, oauth2Service: oauth2Service}
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Authorize redirects the user to the OAuth2 provider's authorization page.
func (h *AuthHandler) Authorize(c *gin.Context) {
	authURL, err := h.oauth2Service.GetAuthorizationURL(c.Request.Context(), c.Param("provider"))
	if err != nil {
		if errors.Is(err, service.ErrOAuth2ProviderNotConfigured) {
			response.BadRequest(c, "oauth2 provider not configured")
			return
		}
		_ = c.Error(err)
		response.InternalError(c, "failed to generate authorization URL")
		return
	}

	c.Redirect(http.StatusFound, authURL)
}

// Callback completes the OAuth2 sign-in and returns a session.
func (h *AuthHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		response.BadRequest(c, "missing code or state")
		return
	}

	result, err := h.oauth2Service.HandleCallback(c.Request.Context(), c.Param("provider"), code, state)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOAuth2InvalidState):
			response.BadRequest(c, "invalid or expired state")
		case errors.Is(err, service.ErrOAuth2ProviderNotConfigured):
			response.BadRequest(c, "oauth2 provider not configured")
		case errors.Is(err, service.ErrOAuth2TokenExchange),
			errors.Is(err, service.ErrOAuth2UserInfo):
			_ = c.Error(err)
			response.BadGateway(c, "identity provider request failed")
		default:
			writeServiceError(c, err, "oauth2 login failed")
		}
		return
	}

	response.Success(c, result)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	tokenSet, err := h.authService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(c, err, "token refresh failed")
		return
	}

	response.Success(c, tokenSet)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		writeServiceError(c, err, "logout failed")
		return
	}

	response.Success(c, nil)
}

// Me returns the signed-in user.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Unauthorized(c, "invalid user context")
		return
	}

	user, err := h.authService.CurrentUser(c.Request.Context(), claims.Subject)
	if err != nil {
		writeServiceError(c, err, "load user failed")
		return
	}

	response.Success(c, user)
}
