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

// RoleHandler exposes role management and permission binding endpoints.
type RoleHandler struct {
	service *services.RoleService
}

func NewRoleHandler(db *gorm.DB) (*RoleHandler, error) {
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	rs, err := services.NewRoleService(db, audit)
	if err != nil {
		return nil, err
	}
	return &RoleHandler{service: rs}, nil
}

type createRoleRequest struct {
	Name      string `json:"name" validate:"required,max=64"`
	Code      string `json:"code" validate:"required,max=64"`
	Forbidden bool   `json:"forbidden"`
	Remark    string `json:"remark"`
}

type updateRoleRequest struct {
	Name      *string `json:"name"`
	Code      *string `json:"code"`
	Forbidden *bool   `json:"forbidden"`
	Remark    *string `json:"remark"`
	// A non-nil permissions array additionally rebinds the role's grants.
	Permissions *[]string `json:"permissions"`
}

// GET /api/role
func (h *RoleHandler) List(c *gin.Context) {
	page, size := pagination(c)

	roles, total, err := h.service.List(requestContext(c), services.ListRolesOptions{
		Page:     page,
		PageSize: size,
		Name:     strings.TrimSpace(c.Query("name")),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, response.Pages[models.Role]{
		Data:  roles,
		Count: total,
		Page:  page,
		Limit: size,
	})
}

// GET /api/role/:id
func (h *RoleHandler) Get(c *gin.Context) {
	role, err := h.service.GetByID(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, role)
}

// POST /api/role
func (h *RoleHandler) Create(c *gin.Context) {
	var body createRoleRequest
	if !bindAndValidate(c, &body) {
		return
	}

	role, err := h.service.Create(requestContext(c), services.CreateRoleInput{
		Name:      strings.TrimSpace(body.Name),
		Code:      strings.TrimSpace(body.Code),
		Forbidden: body.Forbidden,
		Remark:    strings.TrimSpace(body.Remark),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, role)
}

// PATCH /api/role/:id
func (h *RoleHandler) Update(c *gin.Context) {
	var body updateRoleRequest
	if !bindAndValidate(c, &body) {
		return
	}

	ctx := requestContext(c)
	role, err := h.service.Update(ctx, c.Param("id"), services.UpdateRoleInput{
		Name:      body.Name,
		Code:      body.Code,
		Forbidden: body.Forbidden,
		Remark:    body.Remark,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if body.Permissions != nil {
		role, err = h.service.SetPermissions(ctx, role.ID, *body.Permissions)
		if err != nil {
			response.Error(c, err)
			return
		}
	}
	response.Success(c, http.StatusOK, role)
}

// DELETE /api/role/:id
func (h *RoleHandler) Delete(c *gin.Context) {
	deleted, err := h.service.Delete(requestContext(c), []string{c.Param("id")})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": deleted})
}

// POST /api/role/delete
func (h *RoleHandler) BulkDelete(c *gin.Context) {
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

// GET /api/role/list/valid
func (h *RoleHandler) ListValid(c *gin.Context) {
	options, err := h.service.ListValid(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, options)
}

// GET /api/role/tree
func (h *RoleHandler) Tree(c *gin.Context) {
	nodes, err := h.service.Tree(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, nodes)
}

// GET /api/role/check/:code
func (h *RoleHandler) CheckCode(c *gin.Context) {
	existing, err := h.service.CheckCode(requestContext(c), c.Param("code"), c.Query("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, existing)
}
