package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/kalendlab/admin-core/internal/auth"
	"github.com/kalendlab/admin-core/pkg/errors"
	"github.com/kalendlab/admin-core/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
)

// Auth enforces JWT authentication using the supplied JWT service.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		token := strings.TrimSpace(authz[7:])
		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)

		c.Next()
	}
}

// OptionalAuth verifies a Bearer token when one is present and stores the
// claims, but never rejects the request itself. Authorization stays with the
// ACL middleware, which denies protected routes that carry no identity.
func OptionalAuth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) >= 8 && strings.EqualFold(authz[:7], "Bearer ") {
			token := strings.TrimSpace(authz[7:])
			if claims, err := jwt.ValidateAccessToken(token); err == nil {
				c.Set(CtxClaimsKey, claims)
				c.Set(CtxUserIDKey, claims.UserID)
			}
		}
		c.Next()
	}
}
