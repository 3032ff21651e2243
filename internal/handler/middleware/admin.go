package middleware

import (
	"github.com/gin-gonic/gin"

	"loanportal/userhub/internal/model"
	"loanportal/userhub/pkg/response"
)

// AdminAuth admits tokens carrying the admin role, plus any user id in the
// configured allow list (bootstrap before the first admin exists).
// Must be used after JWTAuth middleware.
func AdminAuth(adminUserIDs []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(adminUserIDs))
	for _, id := range adminUserIDs {
		allowed[id] = struct{}{}
	}

	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			abortUnauthorized(c, "missing authentication")
			return
		}

		_, listed := allowed[claims.Subject]
		if claims.Role != string(model.UserRoleAdmin) && !listed {
			response.Forbidden(c, "admin access required")
			c.Abort()
			return
		}

		c.Next()
	}
}
