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

// MenuHandler exposes the navigation tree endpoints, including per-user
// resolution and the assignment tree for the role editor.
type MenuHandler struct {
	service *services.MenuService
}

func NewMenuHandler(db *gorm.DB, abilities *acl.AbilityCache, adminRole string) (*MenuHandler, error) {
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	ms, err := services.NewMenuService(db, audit, abilities, adminRole)
	if err != nil {
		return nil, err
	}
	return &MenuHandler{service: ms}, nil
}

type createMenuRequest struct {
	Title            string  `json:"title" validate:"required,max=64"`
	Path             string  `json:"path" validate:"omitempty,menupath"`
	Icon             string  `json:"icon"`
	IsLeaf           bool    `json:"isLeaf"`
	Forbidden        bool    `json:"forbidden"`
	HideInBreadcrumb bool    `json:"hideInBreadcrumb"`
	ShowExpand       bool    `json:"showExpand"`
	Sort             int     `json:"sort" validate:"required,min=1"`
	Remark           string  `json:"remark"`
	Parent           *string `json:"parent"`
}

type updateMenuRequest struct {
	Title            *string `json:"title"`
	Path             *string `json:"path" validate:"omitempty,menupath"`
	Icon             *string `json:"icon"`
	Forbidden        *bool   `json:"forbidden"`
	HideInBreadcrumb *bool   `json:"hideInBreadcrumb"`
	ShowExpand       *bool   `json:"showExpand"`
	Sort             *int    `json:"sort"`
	Remark           *string `json:"remark"`
	Parent           *string `json:"parent"`
}

// GET /api/menu
func (h *MenuHandler) List(c *gin.Context) {
	page, size := pagination(c)

	opts := services.ListMenusOptions{Page: page, PageSize: size}
	if parent, ok := c.GetQuery("parent"); ok {
		parent = strings.TrimSpace(parent)
		opts.ParentID = &parent
	}

	menus, total, err := h.service.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, response.Pages[models.Menu]{
		Data:  menus,
		Count: total,
		Page:  page,
		Limit: size,
	})
}

// GET /api/menu/:id
func (h *MenuHandler) Get(c *gin.Context) {
	menu, err := h.service.GetByID(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, menu)
}

// POST /api/menu
func (h *MenuHandler) Create(c *gin.Context) {
	var body createMenuRequest
	if !bindAndValidate(c, &body) {
		return
	}

	menu, err := h.service.Create(requestContext(c), services.CreateMenuInput{
		Title:            strings.TrimSpace(body.Title),
		Path:             strings.TrimSpace(body.Path),
		Icon:             strings.TrimSpace(body.Icon),
		IsLeaf:           body.IsLeaf,
		Forbidden:        body.Forbidden,
		HideInBreadcrumb: body.HideInBreadcrumb,
		ShowExpand:       body.ShowExpand,
		Sort:             body.Sort,
		Remark:           strings.TrimSpace(body.Remark),
		ParentID:         body.Parent,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, menu)
}

// PATCH /api/menu/:id
func (h *MenuHandler) Update(c *gin.Context) {
	var body updateMenuRequest
	if !bindAndValidate(c, &body) {
		return
	}

	menu, err := h.service.Update(requestContext(c), c.Param("id"), services.UpdateMenuInput{
		Title:            body.Title,
		Path:             body.Path,
		Icon:             body.Icon,
		Forbidden:        body.Forbidden,
		HideInBreadcrumb: body.HideInBreadcrumb,
		ShowExpand:       body.ShowExpand,
		Sort:             body.Sort,
		Remark:           body.Remark,
		ParentID:         body.Parent,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, menu)
}

// DELETE /api/menu/:id
func (h *MenuHandler) Delete(c *gin.Context) {
	deleted, err := h.service.Delete(requestContext(c), []string{c.Param("id")})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": deleted})
}

// POST /api/menu/delete
func (h *MenuHandler) BulkDelete(c *gin.Context) {
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

// GET /api/menu/tree/:user
func (h *MenuHandler) Tree(c *gin.Context) {
	menu, err := h.service.ResolveForUser(requestContext(c), c.Param("user"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, menu)
}

// GET /api/menu/permission/tree
func (h *MenuHandler) PermissionTree(c *gin.Context) {
	tree, err := h.service.PermissionTree(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, tree)
}

// GET /api/menu/check/*path
func (h *MenuHandler) CheckPath(c *gin.Context) {
	existing, err := h.service.CheckPath(requestContext(c), c.Param("path"), c.Query("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, existing)
}
