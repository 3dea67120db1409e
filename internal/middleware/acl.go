package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kalendlab/admin-core/internal/acl"
	"github.com/kalendlab/admin-core/pkg/errors"
	"github.com/kalendlab/admin-core/pkg/logger"
	"github.com/kalendlab/admin-core/pkg/metrics"
	"github.com/kalendlab/admin-core/pkg/response"
)

// ACL authorizes requests against the match table and the caller's cached
// ability set. Routes outside the table and excluded routes pass through;
// everything else requires an ability granting the verb on the path. Missing
// identity, a missing ability set or a lookup failure all deny.
func ACL(table *acl.MatchTable, abilities *acl.AbilityCache) gin.HandlerFunc {
	log := logger.WithModule("acl")

	return func(c *gin.Context) {
		method, ok := acl.ParseMethod(c.Request.Method)
		if !ok {
			c.Next()
			return
		}

		path := c.Request.URL.Path
		match, found := table.Lookup(method, path)
		if !found {
			metrics.ACLDecisions.WithLabelValues(string(method), "allow_unmatched").Inc()
			c.Next()
			return
		}
		if match.Excluded {
			metrics.ACLDecisions.WithLabelValues(string(method), "allow_excluded").Inc()
			c.Next()
			return
		}

		userID := identityFrom(c)
		if userID == "" {
			metrics.ACLDecisions.WithLabelValues(string(method), "deny").Inc()
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		tokens, cached, err := abilities.Fetch(c.Request.Context(), userID)
		if err != nil {
			metrics.ACLDecisions.WithLabelValues(string(method), "error").Inc()
			log.Error("ability lookup failed",
				zap.String("user_id", userID),
				zap.String("path", path),
				zap.Error(err),
			)
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !cached {
			metrics.ACLDecisions.WithLabelValues(string(method), "deny").Inc()
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		// Ability paths are stored without the global API prefix.
		trimmed := trimPrefix(path, table.Prefix())
		for _, token := range tokens {
			ability, ok := acl.ParseAbility(token)
			if !ok {
				continue
			}
			if ability.Allows(method, trimmed) {
				metrics.ACLDecisions.WithLabelValues(string(method), "allow").Inc()
				c.Next()
				return
			}
		}

		metrics.ACLDecisions.WithLabelValues(string(method), "deny").Inc()
		response.Error(c, errors.ErrUnauthorized)
		c.Abort()
	}
}

// identityFrom prefers the verified JWT claim set by Auth. The "user" query
// parameter is an escape hatch for local development against an unauthed
// frontend and must not be reachable in production deployments.
func identityFrom(c *gin.Context) string {
	if v, ok := c.Get(CtxUserIDKey); ok {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}
	return strings.TrimSpace(c.Query("user"))
}

func trimPrefix(path, prefix string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	trimmed := strings.TrimPrefix(path, prefix)
	if trimmed == "" {
		return "/"
	}
	if !strings.HasPrefix(trimmed, "/") {
		return path
	}
	return trimmed
}
