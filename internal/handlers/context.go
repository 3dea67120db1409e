package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kalendlab/admin-core/internal/middleware"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentUserID returns the authenticated user id stored by the auth
// middleware, or empty when the request carried no verified token.
func currentUserID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if value, ok := c.Get(middleware.CtxUserIDKey); ok {
		if id, ok := value.(string); ok {
			return strings.TrimSpace(id)
		}
	}
	return ""
}
