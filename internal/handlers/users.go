package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kalendlab/admin-core/internal/models"
	"github.com/kalendlab/admin-core/internal/services"
	"github.com/kalendlab/admin-core/pkg/response"
)

// UserHandler exposes account management endpoints.
type UserHandler struct {
	service *services.UserService
}

func NewUserHandler(db *gorm.DB) (*UserHandler, error) {
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	us, err := services.NewUserService(db, audit)
	if err != nil {
		return nil, err
	}
	return &UserHandler{service: us}, nil
}

type createUserRequest struct {
	Account  string   `json:"account" validate:"required,min=2,max=64"`
	Name     string   `json:"name" validate:"required,max=64"`
	Password string   `json:"password"`
	Unit     string   `json:"unit"`
	Position string   `json:"position"`
	Remark   string   `json:"remark"`
	Roles    []string `json:"roles"`
}

type updateUserRequest struct {
	Name     *string `json:"name"`
	Unit     *string `json:"unit"`
	Position *string `json:"position"`
	Remark   *string `json:"remark"`
	Status   *int    `json:"status"`
}

// GET /api/user
func (h *UserHandler) List(c *gin.Context) {
	page, size := pagination(c)

	users, total, err := h.service.List(requestContext(c), services.ListUsersOptions{
		Page:     page,
		PageSize: size,
		Name:     strings.TrimSpace(c.Query("name")),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, response.Pages[models.User]{
		Data:  users,
		Count: total,
		Page:  page,
		Limit: size,
	})
}

// GET /api/user/:id
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.service.GetByID(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// POST /api/user
func (h *UserHandler) Create(c *gin.Context) {
	var body createUserRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.service.Create(requestContext(c), services.CreateUserInput{
		Account:  strings.TrimSpace(body.Account),
		Name:     strings.TrimSpace(body.Name),
		Password: body.Password,
		Unit:     strings.TrimSpace(body.Unit),
		Position: strings.TrimSpace(body.Position),
		Remark:   strings.TrimSpace(body.Remark),
		RoleIDs:  body.Roles,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, user)
}

// PATCH /api/user/:id
func (h *UserHandler) Update(c *gin.Context) {
	var body updateUserRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.service.Update(requestContext(c), c.Param("id"), services.UpdateUserInput{
		Name:     body.Name,
		Unit:     body.Unit,
		Position: body.Position,
		Remark:   body.Remark,
		Status:   body.Status,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// DELETE /api/user/:id
func (h *UserHandler) Delete(c *gin.Context) {
	deleted, err := h.service.Delete(requestContext(c), []string{c.Param("id")})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": deleted})
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

// POST /api/user/delete
func (h *UserHandler) BulkDelete(c *gin.Context) {
	var body bulkDeleteRequest
	if !bindAndValidate(c, &body) {
		return
	}

	deleted, err := h.service.Delete(requestContext(c), body.IDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": deleted})
}

type changePasswordRequest struct {
	Password string `json:"password"`
}

// PATCH /api/user/password/:id
func (h *UserHandler) ChangePassword(c *gin.Context) {
	var body changePasswordRequest
	if !bindAndValidate(c, &body) {
		return
	}

	if err := h.service.ChangePassword(requestContext(c), c.Param("id"), body.Password); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "ok"})
}

type setRolesRequest struct {
	Roles []string `json:"roles"`
}

// POST /api/user/roles/:id
func (h *UserHandler) SetRoles(c *gin.Context) {
	var body setRolesRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.service.SetRoles(requestContext(c), c.Param("id"), body.Roles)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// GET /api/user/check/:account
func (h *UserHandler) CheckAccount(c *gin.Context) {
	existing, err := h.service.CheckAccount(requestContext(c), c.Param("account"), c.Query("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, existing)
}
