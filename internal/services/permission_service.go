package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/kalendlab/admin-core/internal/models"
	apperrors "github.com/kalendlab/admin-core/pkg/errors"
)

// ErrPermissionNotFound indicates the requested permission does not exist.
var ErrPermissionNotFound = apperrors.New("PERMISSION_NOT_FOUND", "Permission not found", http.StatusNotFound)

// CreatePermissionInput describes the fields accepted when creating a permission.
type CreatePermissionInput struct {
	Name      string
	Code      string
	Method    string
	Path      string
	Forbidden bool
	Remark    string
	MenuID    *string
}

// UpdatePermissionInput enumerates mutable permission attributes.
type UpdatePermissionInput struct {
	Name      *string
	Code      *string
	Method    *string
	Path      *string
	Forbidden *bool
	Remark    *string
}

// ListPermissionsOptions controls pagination for permission listing. Listing
// is always scoped to one menu.
type ListPermissionsOptions struct {
	Page     int
	PageSize int
	MenuID   string
}

// DirectGrant is one permission row of a bulk rebind targeting a user or a
// department instead of a menu.
type DirectGrant struct {
	Name      string `json:"name"`
	Code      string `json:"code" binding:"required"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Forbidden bool   `json:"forbidden"`
	Remark    string `json:"remark"`
}

// PermissionService manages permission rows and the bulk rebind operation.
type PermissionService struct {
	db           *gorm.DB
	auditService *AuditService
}

// NewPermissionService constructs a PermissionService instance.
func NewPermissionService(db *gorm.DB, auditService *AuditService) (*PermissionService, error) {
	if db == nil {
		return nil, errors.New("permission service: db is required")
	}
	return &PermissionService{db: db, auditService: auditService}, nil
}

func validPermissionMethod(method string) bool {
	switch method {
	case "", models.PermissionMethodGet, models.PermissionMethodPost,
		models.PermissionMethodPut, models.PermissionMethodPatch, models.PermissionMethodDelete:
		return true
	}
	return false
}

// Create provisions a new permission row.
func (s *PermissionService) Create(ctx context.Context, input CreatePermissionInput) (*models.Permission, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	code := strings.ToLower(strings.TrimSpace(input.Code))
	if name == "" {
		return nil, apperrors.NewBadRequest("permission name is required")
	}
	if code == "" {
		return nil, apperrors.NewBadRequest("permission code is required")
	}
	method := strings.ToLower(strings.TrimSpace(input.Method))
	if !validPermissionMethod(method) {
		return nil, apperrors.NewBadRequest("permission method is not supported")
	}

	permission := &models.Permission{
		Name:      name,
		Code:      code,
		Method:    method,
		Path:      strings.TrimSpace(input.Path),
		Forbidden: input.Forbidden,
		Remark:    strings.TrimSpace(input.Remark),
	}
	if input.MenuID != nil && strings.TrimSpace(*input.MenuID) != "" {
		id := strings.TrimSpace(*input.MenuID)
		permission.MenuID = &id
	}

	if err := s.db.WithContext(ctx).Create(permission).Error; err != nil {
		return nil, fmt.Errorf("permission service: create permission: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "permission.create",
		Resource: permission.ID,
		Result:   "success",
		Metadata: map[string]any{"code": permission.Code, "menu_id": permission.MenuID},
	})

	return permission, nil
}

// GetByID loads a permission by identifier including its owning menu.
func (s *PermissionService) GetByID(ctx context.Context, id string) (*models.Permission, error) {
	ctx = ensureContext(ctx)

	var permission models.Permission
	err := s.db.WithContext(ctx).Preload("Menu").First(&permission, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPermissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("permission service: get permission: %w", err)
	}
	return &permission, nil
}

// List retrieves the permissions of one menu with pagination.
func (s *PermissionService) List(ctx context.Context, opts ListPermissionsOptions) ([]models.Permission, int64, error) {
	ctx = ensureContext(ctx)

	menuID := strings.TrimSpace(opts.MenuID)
	if menuID == "" {
		return nil, 0, apperrors.NewBadRequest("menu parameter is required")
	}

	page, limit := normalisePage(opts.Page, opts.PageSize)

	query := s.db.WithContext(ctx).Model(&models.Permission{}).Where("menu_id = ?", menuID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("permission service: count permissions: %w", err)
	}

	query = query.Order("created_at DESC").Preload("Menu")
	if limit > 0 {
		query = query.Offset((page - 1) * limit).Limit(limit)
	}

	var permissions []models.Permission
	if err := query.Find(&permissions).Error; err != nil {
		return nil, 0, fmt.Errorf("permission service: list permissions: %w", err)
	}

	return permissions, total, nil
}

// Update persists mutable attributes for an existing permission.
func (s *PermissionService) Update(ctx context.Context, id string, input UpdatePermissionInput) (*models.Permission, error) {
	ctx = ensureContext(ctx)

	var permission models.Permission
	err := s.db.WithContext(ctx).First(&permission, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPermissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("permission service: load permission: %w", err)
	}

	updates := map[string]any{}
	if input.Name != nil {
		if name := strings.TrimSpace(*input.Name); name != "" {
			updates["name"] = name
		}
	}
	if input.Code != nil {
		if code := strings.ToLower(strings.TrimSpace(*input.Code)); code != "" {
			updates["code"] = code
		}
	}
	if input.Method != nil {
		method := strings.ToLower(strings.TrimSpace(*input.Method))
		if !validPermissionMethod(method) {
			return nil, apperrors.NewBadRequest("permission method is not supported")
		}
		updates["method"] = method
	}
	if input.Path != nil {
		updates["path"] = strings.TrimSpace(*input.Path)
	}
	if input.Forbidden != nil {
		updates["forbidden"] = *input.Forbidden
	}
	if input.Remark != nil {
		updates["remark"] = strings.TrimSpace(*input.Remark)
	}

	if len(updates) == 0 {
		return &permission, nil
	}

	if err := s.db.WithContext(ctx).Model(&permission).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("permission service: update permission: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "permission.update",
		Resource: permission.ID,
		Result:   "success",
		Metadata: updates,
	})

	return &permission, nil
}

// Delete removes the given permissions and their role bindings.
func (s *PermissionService) Delete(ctx context.Context, ids []string) (int64, error) {
	ctx = ensureContext(ctx)

	cleanIDs := normaliseIDs(ids)
	if len(cleanIDs) == 0 {
		return 0, apperrors.NewBadRequest("at least one permission id is required")
	}

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM role_permissions WHERE permission_id IN ?", cleanIDs).Error; err != nil {
			return fmt.Errorf("permission service: clear role bindings: %w", err)
		}
		result := tx.Where("id IN ?", cleanIDs).Delete(&models.Permission{})
		if result.Error != nil {
			return fmt.Errorf("permission service: delete permissions: %w", result.Error)
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, apperrors.NewTransactionFault("delete permission", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "permission.delete",
		Resource: strings.Join(cleanIDs, ","),
		Result:   "success",
	})

	return deleted, nil
}

// RebindDirect replaces every direct grant of one user or one department with
// the supplied set inside a single transaction: the old rows are deleted, the
// new ones inserted, all-or-nothing. An empty set only clears the old rows,
// which succeeds even when there is nothing to delete. Exactly one of user and
// department must be given.
func (s *PermissionService) RebindDirect(ctx context.Context, grants []DirectGrant, user, department string) ([]models.Permission, error) {
	ctx = ensureContext(ctx)

	user = strings.TrimSpace(user)
	department = strings.TrimSpace(department)
	if user == "" && department == "" {
		return nil, apperrors.NewBadRequest("user or department is required")
	}

	scope := func(tx *gorm.DB) *gorm.DB {
		if user != "" {
			return tx.Where("user_id = ?", user)
		}
		return tx.Where("department = ?", department)
	}

	if len(grants) == 0 {
		if err := scope(s.db.WithContext(ctx)).Delete(&models.Permission{}).Error; err != nil {
			return nil, apperrors.NewTransactionFault("batch update permissions", err)
		}
		s.auditRebind(ctx, user, department, 0)
		return []models.Permission{}, nil
	}

	rows := make([]models.Permission, 0, len(grants))
	for _, grant := range grants {
		code := strings.ToLower(strings.TrimSpace(grant.Code))
		if code == "" {
			return nil, apperrors.NewBadRequest("permission code is required")
		}
		method := strings.ToLower(strings.TrimSpace(grant.Method))
		if !validPermissionMethod(method) {
			return nil, apperrors.NewBadRequest("permission method is not supported")
		}

		row := models.Permission{
			Name:      strings.TrimSpace(grant.Name),
			Code:      code,
			Method:    method,
			Path:      strings.TrimSpace(grant.Path),
			Forbidden: grant.Forbidden,
			Remark:    strings.TrimSpace(grant.Remark),
		}
		if user != "" {
			u := user
			row.UserID = &u
		} else {
			d := department
			row.Department = &d
		}
		rows = append(rows, row)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := scope(tx).Delete(&models.Permission{}).Error; err != nil {
			return fmt.Errorf("permission service: clear direct grants: %w", err)
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("permission service: insert direct grants: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.NewTransactionFault("batch update permissions", err)
	}

	s.auditRebind(ctx, user, department, len(rows))
	return rows, nil
}

func (s *PermissionService) auditRebind(ctx context.Context, user, department string, count int) {
	resource := user
	if resource == "" {
		resource = department
	}
	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "permission.rebind",
		Resource: resource,
		Result:   "success",
		Metadata: map[string]any{"count": count, "department": department != ""},
	})
}

// CheckCode reports the permission holding the code within one menu, excluding
// the record identified by excludeID. A nil result means the code is free.
func (s *PermissionService) CheckCode(ctx context.Context, code, excludeID, menuID string) (*models.Permission, error) {
	ctx = ensureContext(ctx)

	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil, nil
	}

	query := s.db.WithContext(ctx).Where("code = ?", code)
	if menuID = strings.TrimSpace(menuID); menuID != "" {
		query = query.Where("menu_id = ?", menuID)
	}
	if excludeID = strings.TrimSpace(excludeID); excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	var permission models.Permission
	err := query.First(&permission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("permission service: check code: %w", err)
	}
	return &permission, nil
}
