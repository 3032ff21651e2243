package handler

import (
	"github.com/gin-gonic/gin"

	"loanportal/userhub/internal/model"
	"loanportal/userhub/internal/service"
	"loanportal/userhub/pkg/response"
)

type AdminHandler struct {
	userService service.UserService
}

func NewAdminHandler(userService service.UserService) *AdminHandler {
	return &AdminHandler{userService: userService}
}

// Presence is checked by the service so that the response names the field.
type CreateUserRequest struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
	Role      string `json:"role"`
	Status    string `json:"status"`
}

type UpdateUserRequest struct {
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	AvatarURL *string `json:"avatar_url"`
	Role      *string `json:"role"`
	Status    *string `json:"status"`
}

func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	user, err := h.userService.Create(c.Request.Context(), service.CreateUserInput{
		UserID:    req.UserID,
		Name:      req.Name,
		Email:     req.Email,
		AvatarURL: req.AvatarURL,
		Role:      model.UserRole(req.Role),
		Status:    model.UserStatus(req.Status),
	})
	if err != nil {
		writeServiceError(c, err, "failed to create user")
		return
	}

	response.Created(c, user)
}

// ListUsers returns active users, newest first. include_deleted=true adds
// soft-deleted records for maintenance.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	list := h.userService.List
	if c.Query("include_deleted") == "true" {
		list = h.userService.ListAll
	}

	users, err := list(c.Request.Context())
	if err != nil {
		writeServiceError(c, err, "failed to list users")
		return
	}

	response.Success(c, users)
}

func (h *AdminHandler) GetUser(c *gin.Context) {
	user, found, err := h.userService.GetByID(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		writeServiceError(c, err, "failed to get user")
		return
	}
	if !found {
		response.NotFound(c, service.ErrUserNotFound.Error())
		return
	}

	response.Success(c, user)
}

func (h *AdminHandler) UpdateUser(c *gin.Context) {
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	input := service.UpdateUserInput{
		Name:      req.Name,
		Email:     req.Email,
		AvatarURL: req.AvatarURL,
	}
	if req.Role != nil {
		role := model.UserRole(*req.Role)
		input.Role = &role
	}
	if req.Status != nil {
		status := model.UserStatus(*req.Status)
		input.Status = &status
	}

	user, err := h.userService.Update(c.Request.Context(), c.Param("user_id"), input)
	if err != nil {
		writeServiceError(c, err, "failed to update user")
		return
	}

	response.Success(c, user)
}

func (h *AdminHandler) DeleteUser(c *gin.Context) {
	if err := h.userService.SoftDelete(c.Request.Context(), c.Param("user_id")); err != nil {
		writeServiceError(c, err, "failed to delete user")
		return
	}

	response.Success(c, nil)
}
