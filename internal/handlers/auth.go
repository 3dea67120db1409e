package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kalendlab/admin-core/internal/acl"
	iauth "github.com/kalendlab/admin-core/internal/auth"
	"github.com/kalendlab/admin-core/internal/services"
	"github.com/kalendlab/admin-core/pkg/errors"
	"github.com/kalendlab/admin-core/pkg/metrics"
	"github.com/kalendlab/admin-core/pkg/response"
)

// AuthHandler manages the login/logout flow.
type AuthHandler struct {
	users     *services.UserService
	menus     *services.MenuService
	jwt       *iauth.JWTService
	abilities *acl.AbilityCache
}

func NewAuthHandler(users *services.UserService, menus *services.MenuService, jwt *iauth.JWTService, abilities *acl.AbilityCache) *AuthHandler {
	return &AuthHandler{users: users, menus: menus, jwt: jwt, abilities: abilities}
}

type loginRequest struct {
	Account  string `json:"account" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}
	req.Account = strings.TrimSpace(req.Account)

	user, err := h.users.VerifyCredentials(requestContext(c), req.Account, req.Password)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateAccessToken(iauth.AccessTokenInput{
		UserID:  user.ID,
		Account: user.Account,
	})
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	// Resolution also writes the ability set through to the cache, so the
	// ACL middleware sees the fresh grants on the very next request.
	menu, err := h.menus.ResolveForUser(requestContext(c), user.ID)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		response.Error(c, err)
		return
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"user": gin.H{
			"id":      user.ID,
			"account": user.Account,
			"name":    user.Name,
		},
		"menu": menu,
	})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := currentUserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if h.abilities != nil {
		if err := h.abilities.Drop(requestContext(c), userID); err != nil {
			response.Error(c, errors.Wrap(err, "logout failed"))
			return
		}
	}
	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}
