package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"loanportal/userhub/internal/service"
	"loanportal/userhub/pkg/response"
)

// writeServiceError maps service errors onto the response envelope. fallback
// is the message used for unexpected failures.
func writeServiceError(c *gin.Context, err error, fallback string) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		response.BadRequest(c, ve.Error())
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrIdentityConflict):
		response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrUserDisabled),
		errors.Is(err, service.ErrEmailNotVerified):
		response.Forbidden(c, err.Error())
	case errors.Is(err, service.ErrRefreshTokenInvalid):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, service.ErrStoreUnavailable):
		response.Unavailable(c, "service temporarily unavailable")
	default:
		_ = c.Error(err)
		response.InternalError(c, fallback)
	}
}
