// Package response renders the userhub JSON envelope. Successful calls carry
// code 0 with the payload in data; failures repeat the HTTP status in code so
// clients can branch on the body alone.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the body of every userhub response, panics included.
type Envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Failure is the envelope for a non-2xx status.
func Failure(status int, message string) Envelope {
	return Envelope{Code: status, Message: message}
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Code: 0, Message: "ok", Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Code: 0, Message: "created", Data: data})
}

func Error(c *gin.Context, status int, message string) {
	c.JSON(status, Failure(status, message))
}

func BadRequest(c *gin.Context, message string) { Error(c, http.StatusBadRequest, message) }

func Unauthorized(c *gin.Context, message string) { Error(c, http.StatusUnauthorized, message) }

// Forbidden covers deleted or suspended users as well as missing roles.
func Forbidden(c *gin.Context, message string) { Error(c, http.StatusForbidden, message) }

func NotFound(c *gin.Context, message string) { Error(c, http.StatusNotFound, message) }

// Conflict reports a user id or email held by another active user.
func Conflict(c *gin.Context, message string) { Error(c, http.StatusConflict, message) }

func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}

// BadGateway reports a failed call to an upstream identity provider.
func BadGateway(c *gin.Context, message string) { Error(c, http.StatusBadGateway, message) }

// Unavailable reports a store outage the client may retry.
func Unavailable(c *gin.Context, message string) {
	Error(c, http.StatusServiceUnavailable, message)
}
