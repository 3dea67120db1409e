package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/kalendlab/admin-core/internal/acl"
	"github.com/kalendlab/admin-core/internal/models"
	"github.com/kalendlab/admin-core/internal/services"
	"github.com/kalendlab/admin-core/pkg/response"
)

// PermissionHandler exposes permission management, the bulk rebind and the
// discovered route catalogue consumed by the permission editor.
type PermissionHandler struct {
	service *services.PermissionService
	prefix  string
	routes  []acl.DiscoveredRoute
}

func NewPermissionHandler(db *gorm.DB, prefix string, routes []acl.DiscoveredRoute) (*PermissionHandler, error) {
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	ps, err := services.NewPermissionService(db, audit)
	if err != nil {
		return nil, err
	}
	return &PermissionHandler{service: ps, prefix: prefix, routes: routes}, nil
}

type createPermissionRequest struct {
	Name      string  `json:"name" validate:"required,max=64"`
	Code      string  `json:"code" validate:"required,max=64"`
	Method    string  `json:"method"`
	Path      string  `json:"path"`
	Forbidden bool    `json:"forbidden"`
	Remark    string  `json:"remark"`
	Menu      *string `json:"menu"`
}

type updatePermissionRequest struct {
	Name      *string `json:"name"`
	Code      *string `json:"code"`
	Method    *string `json:"method"`
	Path      *string `json:"path"`
	Forbidden *bool   `json:"forbidden"`
	Remark    *string `json:"remark"`
}

type rebindRequest struct {
	ACL        []services.DirectGrant `json:"acl"`
	User       string                 `json:"user"`
	Department string                 `json:"department"`
}

// routeNode is one entry of the catalogue tree. Group nodes carry their
// handler routes as children keyed "METHOD||path".
type routeNode struct {
	Title      string      `json:"title"`
	Key        string      `json:"key"`
	Icon       string      `json:"icon,omitempty"`
	IsLeaf     bool        `json:"isLeaf,omitempty"`
	Selectable bool        `json:"selectable"`
	Expanded   bool        `json:"expanded,omitempty"`
	Children   []routeNode `json:"children,omitempty"`
}

// GET /api/permission
func (h *PermissionHandler) List(c *gin.Context) {
	page, size := pagination(c)

	permissions, total, err := h.service.List(requestContext(c), services.ListPermissionsOptions{
		Page:     page,
		PageSize: size,
		MenuID:   strings.TrimSpace(c.Query("menu")),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, response.Pages[models.Permission]{
		Data:  permissions,
		Count: total,
		Page:  page,
		Limit: size,
	})
}

// GET /api/permission/:id
func (h *PermissionHandler) Get(c *gin.Context) {
	permission, err := h.service.GetByID(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, permission)
}

// POST /api/permission
func (h *PermissionHandler) Create(c *gin.Context) {
	var body createPermissionRequest
	if !bindAndValidate(c, &body) {
		return
	}

	permission, err := h.service.Create(requestContext(c), services.CreatePermissionInput{
		Name:      strings.TrimSpace(body.Name),
		Code:      strings.TrimSpace(body.Code),
		Method:    strings.TrimSpace(body.Method),
		Path:      strings.TrimSpace(body.Path),
		Forbidden: body.Forbidden,
		Remark:    strings.TrimSpace(body.Remark),
		MenuID:    body.Menu,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, permission)
}

// PATCH /api/permission/:id
func (h *PermissionHandler) Update(c *gin.Context) {
	var body updatePermissionRequest
	if !bindAndValidate(c, &body) {
		return
	}

	permission, err := h.service.Update(requestContext(c), c.Param("id"), services.UpdatePermissionInput{
		Name:      body.Name,
		Code:      body.Code,
		Method:    body.Method,
		Path:      body.Path,
		Forbidden: body.Forbidden,
		Remark:    body.Remark,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, permission)
}

// DELETE /api/permission/:id
func (h *PermissionHandler) Delete(c *gin.Context) {
	deleted, err := h.service.Delete(requestContext(c), []string{c.Param("id")})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": deleted})
}

// POST /api/permission/delete
func (h *PermissionHandler) BulkDelete(c *gin.Context) {
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

// POST /api/permission/update
func (h *PermissionHandler) Rebind(c *gin.Context) {
	var body rebindRequest
	if !bindAndValidate(c, &body) {
		return
	}

	rows, err := h.service.RebindDirect(requestContext(c), body.ACL, body.User, body.Department)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rows)
}

// GET /api/permission/check/:code
func (h *PermissionHandler) CheckCode(c *gin.Context) {
	existing, err := h.service.CheckCode(requestContext(c), c.Param("code"), c.Query("id"), c.Query("menu"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, existing)
}

// GET /api/permission/acl/router
func (h *PermissionHandler) Catalogue(c *gin.Context) {
	groups := make([]routeNode, 0)
	index := make(map[string]int)

	for _, route := range h.routes {
		controller := strings.TrimSpace(route.Controller)
		if controller == "" {
			controller = "root"
		}

		pos, ok := index[controller]
		if !ok {
			pos = len(groups)
			index[controller] = pos
			groups = append(groups, routeNode{
				Title:    controller,
				Key:      controller,
				Expanded: true,
			})
		}

		path := acl.CanonicalPath(h.prefix, route.Prefix, route.Path)
		method := strings.ToUpper(string(route.Method))
		groups[pos].Children = append(groups[pos].Children, routeNode{
			Title:      method + " " + path,
			Key:        method + "||" + path,
			Icon:       "api",
			IsLeaf:     true,
			Selectable: true,
		})
	}

	response.Success(c, http.StatusOK, groups)
}
