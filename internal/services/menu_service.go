package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/kalendlab/admin-core/internal/acl"
	"github.com/kalendlab/admin-core/internal/models"
	apperrors "github.com/kalendlab/admin-core/pkg/errors"
	"github.com/kalendlab/admin-core/pkg/logger"
	"github.com/kalendlab/admin-core/pkg/metrics"
)

// ErrMenuNotFound indicates the requested menu does not exist.
var ErrMenuNotFound = apperrors.New("MENU_NOT_FOUND", "Menu not found", http.StatusNotFound)

// defaultCrudPermissions are auto-provisioned for every new leaf menu. The
// codes double as the verb half of the derived ability strings.
var defaultCrudPermissions = []struct {
	Code string
	Name string
}{
	{models.PermissionMethodPost, "Create"},
	{models.PermissionMethodDelete, "Delete"},
	{models.PermissionMethodGet, "Read"},
	{models.PermissionMethodPatch, "Update"},
}

// CreateMenuInput describes the fields accepted when creating a menu.
type CreateMenuInput struct {
	Title            string
	Path             string
	Icon             string
	IsLeaf           bool
	Forbidden        bool
	HideInBreadcrumb bool
	ShowExpand       bool
	Sort             int
	Remark           string
	ParentID         *string
}

// UpdateMenuInput enumerates mutable menu attributes. A non-nil ParentID moves
// the subtree under the new parent ("" detaches to root).
type UpdateMenuInput struct {
	Title            *string
	Path             *string
	Icon             *string
	Forbidden        *bool
	HideInBreadcrumb *bool
	ShowExpand       *bool
	Sort             *int
	Remark           *string
	ParentID         *string
}

// ListMenusOptions controls pagination for menu listing. Listing is scoped to
// the children of one parent; a nil ParentID lists the roots.
type ListMenusOptions struct {
	Page     int
	PageSize int
	ParentID *string
}

// MenuMeta is the display projection carried by resolved tree nodes.
type MenuMeta struct {
	Title            string `json:"title"`
	Icon             string `json:"icon"`
	HideInBreadcrumb bool   `json:"hideInBreadcrumb"`
	ShowExpand       bool   `json:"showExpand"`
}

// MenuACL tags a resolved node with the abilities that kept it visible.
type MenuACL struct {
	Ability []string `json:"ability"`
}

// MenuNode is one node of the pruned navigation tree handed to the frontend.
type MenuNode struct {
	Key      string     `json:"key"`
	Title    string     `json:"title"`
	Path     string     `json:"path,omitempty"`
	IsLeaf   bool       `json:"isLeaf"`
	Sort     int        `json:"sort"`
	Meta     MenuMeta   `json:"meta"`
	ACL      *MenuACL   `json:"acl,omitempty"`
	Children []MenuNode `json:"children,omitempty"`
}

// SearchEntry points the frontend search box at one reachable leaf.
type SearchEntry struct {
	RootID    string `json:"rootId"`
	RootTitle string `json:"rootTitle"`
	ID        string `json:"id"`
	Title     string `json:"title"`
	Path      string `json:"path"`
}

// UserMenu is the full resolution result for one user.
type UserMenu struct {
	Roles        []string      `json:"roles"`
	Abilities    []string      `json:"abilities"`
	Menus        []MenuNode    `json:"menus"`
	DefaultRoute string        `json:"defaultRoute"`
	SearchIndex  []SearchEntry `json:"searchIndex"`
	HasMenu      bool          `json:"hasMenu"`
}

// PermissionTreeNode is one node of the assignment tree used by the role editor.
type PermissionTreeNode struct {
	Key      string               `json:"key"`
	Title    string               `json:"title"`
	IsLeaf   bool                 `json:"isLeaf"`
	Children []PermissionTreeNode `json:"children,omitempty"`
}

// MenuService manages the navigation tree, its closure table, the
// auto-provisioned CRUD permissions and per-user tree resolution.
type MenuService struct {
	db           *gorm.DB
	auditService *AuditService
	abilities    *acl.AbilityCache
	adminRole    string
}

// NewMenuService constructs a MenuService. The ability cache may be nil, in
// which case resolution skips the write-through.
func NewMenuService(db *gorm.DB, auditService *AuditService, abilities *acl.AbilityCache, adminRole string) (*MenuService, error) {
	if db == nil {
		return nil, errors.New("menu service: db is required")
	}
	if strings.TrimSpace(adminRole) == "" {
		adminRole = "admin"
	}
	return &MenuService{
		db:           db,
		auditService: auditService,
		abilities:    abilities,
		adminRole:    adminRole,
	}, nil
}

// validateMenu enforces the create/update rules shared by both paths.
func (s *MenuService) validateMenu(ctx context.Context, title, path string, isLeaf bool, sortOrder int, excludeID string) error {
	if strings.TrimSpace(title) == "" {
		return apperrors.NewBadRequest("menu title is required")
	}
	if sortOrder <= 0 {
		return apperrors.NewBadRequest("menu sort is required")
	}
	if isLeaf && strings.TrimSpace(path) == "" {
		return apperrors.NewBadRequest("leaf menu path is required")
	}

	if path = strings.TrimSpace(path); path != "" {
		query := s.db.WithContext(ctx).Model(&models.Menu{}).Where("path = ?", path)
		if excludeID != "" {
			query = query.Where("id <> ?", excludeID)
		}
		var count int64
		if err := query.Count(&count).Error; err != nil {
			return fmt.Errorf("menu service: check path: %w", err)
		}
		if count > 0 {
			return apperrors.NewConflict("menu path already exists")
		}
	}

	query := s.db.WithContext(ctx).Model(&models.Menu{}).Where("title = ?", strings.TrimSpace(title))
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("menu service: check title: %w", err)
	}
	if count > 0 {
		return apperrors.NewConflict("menu title already exists")
	}

	return nil
}

// Create inserts a menu, materializes its closure rows and, for leaf menus,
// auto-provisions the default CRUD permissions, all inside one transaction.
func (s *MenuService) Create(ctx context.Context, input CreateMenuInput) (*models.Menu, error) {
	ctx = ensureContext(ctx)

	if err := s.validateMenu(ctx, input.Title, input.Path, input.IsLeaf, input.Sort, ""); err != nil {
		return nil, err
	}

	menu := &models.Menu{
		Title:            strings.TrimSpace(input.Title),
		Path:             strings.TrimSpace(input.Path),
		Icon:             strings.TrimSpace(input.Icon),
		IsLeaf:           input.IsLeaf,
		Forbidden:        input.Forbidden,
		HideInBreadcrumb: input.HideInBreadcrumb,
		ShowExpand:       input.ShowExpand,
		Sort:             input.Sort,
		Remark:           strings.TrimSpace(input.Remark),
	}

	if input.ParentID != nil && strings.TrimSpace(*input.ParentID) != "" {
		id := strings.TrimSpace(*input.ParentID)
		menu.ParentID = &id
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if menu.ParentID != nil {
			var parent models.Menu
			if err := tx.First(&parent, "id = ?", *menu.ParentID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperrors.NewBadRequest("parent menu was not found")
				}
				return fmt.Errorf("menu service: load parent: %w", err)
			}
			if parent.IsLeaf {
				return apperrors.NewBadRequest("leaf menus cannot hold children")
			}
		}

		if err := tx.Create(menu).Error; err != nil {
			return fmt.Errorf("menu service: insert menu: %w", err)
		}

		closures := []models.MenuClosure{{AncestorID: menu.ID, DescendantID: menu.ID, Depth: 0}}
		if menu.ParentID != nil {
			var ancestors []models.MenuClosure
			if err := tx.Where("descendant_id = ?", *menu.ParentID).Find(&ancestors).Error; err != nil {
				return fmt.Errorf("menu service: load ancestor closure: %w", err)
			}
			for _, row := range ancestors {
				closures = append(closures, models.MenuClosure{
					AncestorID:   row.AncestorID,
					DescendantID: menu.ID,
					Depth:        row.Depth + 1,
				})
			}
		}
		if err := tx.Create(&closures).Error; err != nil {
			return fmt.Errorf("menu service: insert closure rows: %w", err)
		}

		if menu.IsLeaf {
			permissions := make([]models.Permission, 0, len(defaultCrudPermissions))
			for _, crud := range defaultCrudPermissions {
				permissions = append(permissions, models.Permission{
					Name:   crud.Name,
					Code:   crud.Code,
					Method: crud.Code,
					Path:   "*",
					MenuID: &menu.ID,
				})
			}
			if err := tx.Create(&permissions).Error; err != nil {
				return fmt.Errorf("menu service: provision permissions: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.NewTransactionFault("create menu", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "menu.create",
		Resource: menu.ID,
		Result:   "success",
		Metadata: map[string]any{"title": menu.Title, "is_leaf": menu.IsLeaf},
	})

	return s.GetByID(ctx, menu.ID)
}

// GetByID loads a menu including its children and permissions.
func (s *MenuService) GetByID(ctx context.Context, id string) (*models.Menu, error) {
	ctx = ensureContext(ctx)

	var menu models.Menu
	err := s.db.WithContext(ctx).
		Preload("Children").
		Preload("Permissions").
		First(&menu, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMenuNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("menu service: get menu: %w", err)
	}
	if menu.Permissions == nil {
		menu.Permissions = []models.Permission{}
	}
	return &menu, nil
}

// List retrieves the children of one parent (the roots when ParentID is nil)
// with pagination, ordered by sort.
func (s *MenuService) List(ctx context.Context, opts ListMenusOptions) ([]models.Menu, int64, error) {
	ctx = ensureContext(ctx)

	page, limit := normalisePage(opts.Page, opts.PageSize)

	query := s.db.WithContext(ctx).Model(&models.Menu{})
	if opts.ParentID != nil && strings.TrimSpace(*opts.ParentID) != "" {
		query = query.Where("parent_id = ?", strings.TrimSpace(*opts.ParentID))
	} else {
		query = query.Where("parent_id IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("menu service: count menus: %w", err)
	}

	query = query.Order("sort ASC").Preload("Permissions")
	if limit > 0 {
		query = query.Offset((page - 1) * limit).Limit(limit)
	}

	var menus []models.Menu
	if err := query.Find(&menus).Error; err != nil {
		return nil, 0, fmt.Errorf("menu service: list menus: %w", err)
	}

	return menus, total, nil
}

// Update persists mutable attributes and, when the parent changes, relocates
// the subtree's closure rows in the same transaction.
func (s *MenuService) Update(ctx context.Context, id string, input UpdateMenuInput) (*models.Menu, error) {
	ctx = ensureContext(ctx)

	var menu models.Menu
	err := s.db.WithContext(ctx).First(&menu, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMenuNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("menu service: load menu: %w", err)
	}

	title := menu.Title
	if input.Title != nil {
		title = strings.TrimSpace(*input.Title)
	}
	path := menu.Path
	if input.Path != nil {
		path = strings.TrimSpace(*input.Path)
	}
	sortOrder := menu.Sort
	if input.Sort != nil {
		sortOrder = *input.Sort
	}
	if err := s.validateMenu(ctx, title, path, menu.IsLeaf, sortOrder, menu.ID); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Title != nil {
		updates["title"] = title
	}
	if input.Path != nil {
		updates["path"] = path
	}
	if input.Icon != nil {
		updates["icon"] = strings.TrimSpace(*input.Icon)
	}
	if input.Forbidden != nil {
		updates["forbidden"] = *input.Forbidden
	}
	if input.HideInBreadcrumb != nil {
		updates["hide_in_breadcrumb"] = *input.HideInBreadcrumb
	}
	if input.ShowExpand != nil {
		updates["show_expand"] = *input.ShowExpand
	}
	if input.Sort != nil {
		updates["sort"] = sortOrder
	}
	if input.Remark != nil {
		updates["remark"] = strings.TrimSpace(*input.Remark)
	}

	var newParent *string
	moving := false
	if input.ParentID != nil {
		trimmed := strings.TrimSpace(*input.ParentID)
		current := ""
		if menu.ParentID != nil {
			current = *menu.ParentID
		}
		if trimmed != current {
			moving = true
			if trimmed != "" {
				newParent = &trimmed
			}
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(&menu).Updates(updates).Error; err != nil {
				return fmt.Errorf("menu service: update menu: %w", err)
			}
		}
		if moving {
			if err := s.moveSubtree(tx, &menu, newParent); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.NewTransactionFault("update menu", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "menu.update",
		Resource: menu.ID,
		Result:   "success",
		Metadata: updates,
	})

	return s.GetByID(ctx, menu.ID)
}

// moveSubtree reattaches the menu's whole subtree under newParent (nil for
// root), rewriting the closure rows that cross the subtree boundary.
func (s *MenuService) moveSubtree(tx *gorm.DB, menu *models.Menu, newParent *string) error {
	var subtree []models.MenuClosure
	if err := tx.Where("ancestor_id = ?", menu.ID).Find(&subtree).Error; err != nil {
		return fmt.Errorf("menu service: load subtree closure: %w", err)
	}

	subtreeIDs := make([]string, 0, len(subtree))
	inSubtree := make(map[string]int, len(subtree))
	for _, row := range subtree {
		subtreeIDs = append(subtreeIDs, row.DescendantID)
		inSubtree[row.DescendantID] = row.Depth
	}

	if newParent != nil {
		if _, cycles := inSubtree[*newParent]; cycles {
			return apperrors.NewBadRequest("menu cannot be moved under its own subtree")
		}
		var parent models.Menu
		if err := tx.First(&parent, "id = ?", *newParent).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewBadRequest("parent menu was not found")
			}
			return fmt.Errorf("menu service: load parent: %w", err)
		}
		if parent.IsLeaf {
			return apperrors.NewBadRequest("leaf menus cannot hold children")
		}
	}

	if err := tx.Where("descendant_id IN ? AND ancestor_id NOT IN ?", subtreeIDs, subtreeIDs).
		Delete(&models.MenuClosure{}).Error; err != nil {
		return fmt.Errorf("menu service: detach subtree closure: %w", err)
	}

	if newParent != nil {
		var ancestors []models.MenuClosure
		if err := tx.Where("descendant_id = ?", *newParent).Find(&ancestors).Error; err != nil {
			return fmt.Errorf("menu service: load new ancestor closure: %w", err)
		}
		links := make([]models.MenuClosure, 0, len(ancestors)*len(subtree))
		for _, anc := range ancestors {
			for _, desc := range subtree {
				links = append(links, models.MenuClosure{
					AncestorID:   anc.AncestorID,
					DescendantID: desc.DescendantID,
					Depth:        anc.Depth + 1 + desc.Depth,
				})
			}
		}
		if len(links) > 0 {
			if err := tx.Create(&links).Error; err != nil {
				return fmt.Errorf("menu service: attach subtree closure: %w", err)
			}
		}
	}

	if err := tx.Model(menu).Update("parent_id", newParent).Error; err != nil {
		return fmt.Errorf("menu service: reparent menu: %w", err)
	}
	return nil
}

// Delete removes the given menus together with their whole subtrees, the
// subtree permissions and every closure row, inside one transaction.
func (s *MenuService) Delete(ctx context.Context, ids []string) (int64, error) {
	ctx = ensureContext(ctx)

	cleanIDs := normaliseIDs(ids)
	if len(cleanIDs) == 0 {
		return 0, apperrors.NewBadRequest("at least one menu id is required")
	}

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var subtreeIDs []string
		if err := tx.Model(&models.MenuClosure{}).
			Where("ancestor_id IN ?", cleanIDs).
			Distinct("descendant_id").
			Pluck("descendant_id", &subtreeIDs).Error; err != nil {
			return fmt.Errorf("menu service: expand subtrees: %w", err)
		}
		if len(subtreeIDs) == 0 {
			subtreeIDs = cleanIDs
		}

		var permissionIDs []string
		if err := tx.Model(&models.Permission{}).
			Where("menu_id IN ?", subtreeIDs).
			Pluck("id", &permissionIDs).Error; err != nil {
			return fmt.Errorf("menu service: load subtree permissions: %w", err)
		}
		if len(permissionIDs) > 0 {
			if err := tx.Exec("DELETE FROM role_permissions WHERE permission_id IN ?", permissionIDs).Error; err != nil {
				return fmt.Errorf("menu service: clear role bindings: %w", err)
			}
			if err := tx.Where("id IN ?", permissionIDs).Delete(&models.Permission{}).Error; err != nil {
				return fmt.Errorf("menu service: delete permissions: %w", err)
			}
		}

		if err := tx.Where("ancestor_id IN ? OR descendant_id IN ?", subtreeIDs, subtreeIDs).
			Delete(&models.MenuClosure{}).Error; err != nil {
			return fmt.Errorf("menu service: delete closure rows: %w", err)
		}

		result := tx.Where("id IN ?", subtreeIDs).Delete(&models.Menu{})
		if result.Error != nil {
			return fmt.Errorf("menu service: delete menus: %w", result.Error)
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, apperrors.NewTransactionFault("delete menu", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "menu.delete",
		Resource: strings.Join(cleanIDs, ","),
		Result:   "success",
	})

	return deleted, nil
}

// CheckPath reports the menu holding the path, excluding the record identified
// by excludeID. A nil result means the path is free.
func (s *MenuService) CheckPath(ctx context.Context, path, excludeID string) (*models.Menu, error) {
	ctx = ensureContext(ctx)

	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}

	query := s.db.WithContext(ctx).Where("path = ?", path)
	if excludeID = strings.TrimSpace(excludeID); excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	var menu models.Menu
	err := query.First(&menu).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("menu service: check path: %w", err)
	}
	return &menu, nil
}

// loadTree loads every menu with its permissions and assembles the in-memory
// tree, siblings ordered by sort ascending.
func (s *MenuService) loadTree(ctx context.Context) ([]*models.Menu, error) {
	var menus []models.Menu
	if err := s.db.WithContext(ctx).
		Preload("Permissions").
		Order("sort ASC, created_at DESC").
		Find(&menus).Error; err != nil {
		return nil, fmt.Errorf("menu service: load menus: %w", err)
	}

	nodes := make(map[string]*models.Menu, len(menus))
	for i := range menus {
		menus[i].Children = nil
		nodes[menus[i].ID] = &menus[i]
	}

	var roots []*models.Menu
	for i := range menus {
		node := &menus[i]
		if node.ParentID != nil {
			if parent, ok := nodes[*node.ParentID]; ok {
				parent.Children = append(parent.Children, *node)
				continue
			}
		}
		roots = append(roots, node)
	}

	// Children were appended by value before their own children were attached;
	// rebuild the child slices from the map so nesting is complete.
	var attach func(node *models.Menu)
	attach = func(node *models.Menu) {
		for i := range node.Children {
			child := nodes[node.Children[i].ID]
			attach(child)
			node.Children[i] = *child
		}
		sort.SliceStable(node.Children, func(i, j int) bool {
			return node.Children[i].Sort < node.Children[j].Sort
		})
	}
	for _, root := range roots {
		attach(root)
	}
	sort.SliceStable(roots, func(i, j int) bool { return roots[i].Sort < roots[j].Sort })

	return roots, nil
}

// PermissionTree returns the assignment tree for the role editor: groups keep
// their sub-menus as children, leaf menus expose their permissions as
// selectable leaves.
func (s *MenuService) PermissionTree(ctx context.Context) ([]PermissionTreeNode, error) {
	ctx = ensureContext(ctx)

	roots, err := s.loadTree(ctx)
	if err != nil {
		return nil, err
	}

	var walk func(menus []models.Menu) []PermissionTreeNode
	walk = func(menus []models.Menu) []PermissionTreeNode {
		var nodes []PermissionTreeNode
		for _, menu := range menus {
			if menu.IsLeaf {
				if len(menu.Permissions) == 0 {
					continue
				}
				node := PermissionTreeNode{Key: menu.ID, Title: menu.Title}
				for _, p := range menu.Permissions {
					node.Children = append(node.Children, PermissionTreeNode{
						Key:    p.ID,
						Title:  p.Name,
						IsLeaf: true,
					})
				}
				nodes = append(nodes, node)
				continue
			}
			children := walk(menu.Children)
			if len(children) == 0 {
				continue
			}
			nodes = append(nodes, PermissionTreeNode{
				Key:      menu.ID,
				Title:    menu.Title,
				Children: children,
			})
		}
		return nodes
	}

	rootMenus := make([]models.Menu, 0, len(roots))
	for _, root := range roots {
		rootMenus = append(rootMenus, *root)
	}
	return walk(rootMenus), nil
}

// roleAbilities flattens the user's role grants into deduplicated role codes
// and ability strings. Forbidden roles and permissions contribute nothing.
func (s *MenuService) roleAbilities(ctx context.Context, userID string) ([]string, []string, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Roles.Permissions.Menu").
		First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrUserNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("menu service: load user grants: %w", err)
	}

	var roles, abilities []string
	seenRoles := make(map[string]struct{})
	seenAbilities := make(map[string]struct{})

	for _, role := range user.Roles {
		if role.Forbidden {
			continue
		}
		if _, ok := seenRoles[role.Code]; !ok {
			seenRoles[role.Code] = struct{}{}
			roles = append(roles, role.Code)
		}
		for _, p := range role.Permissions {
			if p.Forbidden || p.Menu == nil || p.Menu.Path == "" {
				continue
			}
			ability := p.Menu.Path + ":" + p.Code
			if _, ok := seenAbilities[ability]; !ok {
				seenAbilities[ability] = struct{}{}
				abilities = append(abilities, ability)
			}
		}
	}

	return roles, abilities, nil
}

// ResolveForUser computes the user's pruned navigation tree. Leaves survive
// only when the user holds the "<path>:get" ability; groups with children
// always survive, but those with no reachable leaf anywhere below them are
// tagged with an empty ability placeholder so the frontend renders them
// disabled. The flattened ability set is written through to the cache; a write
// failure degrades to a log entry.
func (s *MenuService) ResolveForUser(ctx context.Context, userID string) (*UserMenu, error) {
	ctx = ensureContext(ctx)

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}

	roles, abilities, err := s.roleAbilities(ctx, userID)
	if err != nil {
		metrics.MenuResolutions.WithLabelValues("error").Inc()
		return nil, err
	}

	roots, err := s.loadTree(ctx)
	if err != nil {
		metrics.MenuResolutions.WithLabelValues("error").Inc()
		return nil, err
	}

	if roles == nil {
		roles = []string{}
	}
	if abilities == nil {
		abilities = []string{}
	}

	granted := make(map[string]struct{}, len(abilities))
	for _, ability := range abilities {
		granted[ability] = struct{}{}
	}

	result := &UserMenu{
		Roles:       roles,
		Abilities:   abilities,
		Menus:       []MenuNode{},
		SearchIndex: []SearchEntry{},
	}

	var walk func(menus []models.Menu, root *models.Menu) ([]MenuNode, bool)
	walk = func(menus []models.Menu, root *models.Menu) ([]MenuNode, bool) {
		var nodes []MenuNode
		var anyGranted bool
		for _, menu := range menus {
			if menu.Forbidden {
				continue
			}
			meta := MenuMeta{
				Title:            menu.Title,
				Icon:             menu.Icon,
				HideInBreadcrumb: menu.HideInBreadcrumb,
				ShowExpand:       menu.ShowExpand,
			}
			if menu.IsLeaf && menu.Path != "" {
				ability := menu.Path + ":" + models.PermissionMethodGet
				if _, ok := granted[ability]; !ok {
					continue
				}
				anyGranted = true
				if result.DefaultRoute == "" {
					result.DefaultRoute = menu.Path
				}
				entry := SearchEntry{ID: menu.ID, Title: menu.Title, Path: menu.Path}
				if root != nil {
					entry.RootID = root.ID
					entry.RootTitle = root.Title
				}
				result.SearchIndex = append(result.SearchIndex, entry)
				nodes = append(nodes, MenuNode{
					Key:    menu.ID,
					Title:  menu.Title,
					Path:   menu.Path,
					IsLeaf: true,
					Sort:   menu.Sort,
					Meta:   meta,
					ACL:    &MenuACL{Ability: []string{ability}},
				})
				continue
			}

			if len(menu.Children) == 0 {
				continue
			}
			childRoot := root
			if childRoot == nil {
				childRoot = &menu
			}
			children, grantedBelow := walk(menu.Children, childRoot)
			node := MenuNode{
				Key:      menu.ID,
				Title:    menu.Title,
				IsLeaf:   false,
				Sort:     menu.Sort,
				Meta:     meta,
				Children: children,
			}
			if !grantedBelow {
				// Disabled group: nothing actionable underneath, kept so the
				// frontend can grey it out instead of hiding it.
				node.ACL = &MenuACL{Ability: []string{""}}
			}
			anyGranted = anyGranted || grantedBelow
			nodes = append(nodes, node)
		}
		return nodes, anyGranted
	}

	rootMenus := make([]models.Menu, 0, len(roots))
	for _, root := range roots {
		rootMenus = append(rootMenus, *root)
	}
	if menus, _ := walk(rootMenus, nil); menus != nil {
		result.Menus = menus
	}
	result.HasMenu = containsString(roles, s.adminRole) || len(result.SearchIndex) > 0

	if s.abilities != nil {
		if err := s.abilities.Put(ctx, userID, abilities); err != nil {
			metrics.AbilityCacheWrites.WithLabelValues("failure").Inc()
			logger.WithModule("menu").Warn("ability cache write failed",
				zap.String("user_id", userID),
				zap.Error(err),
			)
		} else {
			metrics.AbilityCacheWrites.WithLabelValues("success").Inc()
		}
	}

	metrics.MenuResolutions.WithLabelValues("success").Inc()
	return result, nil
}
