package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	jwtpkg "loanportal/userhub/pkg/jwt"
	"loanportal/userhub/pkg/response"
)

// ContextKeyUserClaims holds the *jwt.Claims of the signed-in user.
const ContextKeyUserClaims = "user_claims"

// JWTAuth admits requests bearing a userhub access token. Refresh tokens are
// turned away here; only the refresh endpoint accepts them.
func JWTAuth(jwtManager *jwtpkg.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c, "missing or malformed bearer token")
			return
		}

		claims, err := jwtManager.Validate(raw)
		if err != nil {
			abortUnauthorized(c, "invalid or expired token")
			return
		}
		if claims.TokenType != jwtpkg.TokenTypeAccess {
			abortUnauthorized(c, "access token required")
			return
		}

		c.Set(ContextKeyUserClaims, claims)
		c.Next()
	}
}

// ClaimsFrom returns what JWTAuth stored. ok is false off the authenticated
// routes or when the token names no user.
func ClaimsFrom(c *gin.Context) (claims *jwtpkg.Claims, ok bool) {
	v, exists := c.Get(ContextKeyUserClaims)
	if !exists {
		return nil, false
	}
	claims, ok = v.(*jwtpkg.Claims)
	if !ok || claims.Subject == "" {
		return nil, false
	}
	return claims, true
}

// bearerToken parses "Bearer <token>". The scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func abortUnauthorized(c *gin.Context, message string) {
	response.Unauthorized(c, message)
	c.Abort()
}
