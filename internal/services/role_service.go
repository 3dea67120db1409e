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

// ErrRoleNotFound indicates the requested role does not exist.
var ErrRoleNotFound = apperrors.New("ROLE_NOT_FOUND", "Role not found", http.StatusNotFound)

// CreateRoleInput describes the fields accepted when creating a role.
type CreateRoleInput struct {
	Name      string
	Code      string
	Forbidden bool
	Remark    string
}

// UpdateRoleInput enumerates mutable role attributes.
type UpdateRoleInput struct {
	Name      *string
	Code      *string
	Forbidden *bool
	Remark    *string
}

// ListRolesOptions controls pagination and filters for role listing.
type ListRolesOptions struct {
	Page     int
	PageSize int
	Name     string
}

// RoleOption is the label/value projection consumed by role pickers.
type RoleOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// RoleNode is one entry of the role selection tree.
type RoleNode struct {
	Key    string `json:"key"`
	Title  string `json:"title"`
	Code   string `json:"code"`
	IsLeaf bool   `json:"isLeaf"`
}

// RoleService manages roles and their permission bindings.
type RoleService struct {
	db           *gorm.DB
	auditService *AuditService
}

// NewRoleService constructs a RoleService instance.
func NewRoleService(db *gorm.DB, auditService *AuditService) (*RoleService, error) {
	if db == nil {
		return nil, errors.New("role service: db is required")
	}
	return &RoleService{db: db, auditService: auditService}, nil
}

// Create provisions a new role. Duplicate codes are a conflict.
func (s *RoleService) Create(ctx context.Context, input CreateRoleInput) (*models.Role, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	code := strings.TrimSpace(input.Code)
	if name == "" {
		return nil, apperrors.NewBadRequest("role name is required")
	}
	if code == "" {
		return nil, apperrors.NewBadRequest("role code is required")
	}

	role := &models.Role{
		Name:      name,
		Code:      code,
		Forbidden: input.Forbidden,
		Remark:    strings.TrimSpace(input.Remark),
	}

	if err := s.db.WithContext(ctx).Create(role).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("role code already exists")
		}
		return nil, fmt.Errorf("role service: create role: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "role.create",
		Resource: role.ID,
		Result:   "success",
		Metadata: map[string]any{"code": role.Code},
	})

	return role, nil
}

// GetByID loads a role by identifier including its permissions.
func (s *RoleService) GetByID(ctx context.Context, id string) (*models.Role, error) {
	ctx = ensureContext(ctx)

	var role models.Role
	err := s.db.WithContext(ctx).Preload("Permissions").First(&role, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("role service: get role: %w", err)
	}
	return &role, nil
}

// List retrieves roles with pagination. A page size of zero returns the full set.
func (s *RoleService) List(ctx context.Context, opts ListRolesOptions) ([]models.Role, int64, error) {
	ctx = ensureContext(ctx)

	page, limit := normalisePage(opts.Page, opts.PageSize)

	query := s.db.WithContext(ctx).Model(&models.Role{})
	if name := strings.TrimSpace(opts.Name); name != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("role service: count roles: %w", err)
	}

	query = query.Order("created_at DESC").Preload("Permissions")
	if limit > 0 {
		query = query.Offset((page - 1) * limit).Limit(limit)
	}

	var roles []models.Role
	if err := query.Find(&roles).Error; err != nil {
		return nil, 0, fmt.Errorf("role service: list roles: %w", err)
	}

	return roles, total, nil
}

// Update persists mutable attributes for an existing role.
func (s *RoleService) Update(ctx context.Context, id string, input UpdateRoleInput) (*models.Role, error) {
	ctx = ensureContext(ctx)

	var role models.Role
	err := s.db.WithContext(ctx).First(&role, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("role service: load role: %w", err)
	}

	updates := map[string]any{}
	if input.Name != nil {
		if name := strings.TrimSpace(*input.Name); name != "" {
			updates["name"] = name
		}
	}
	if input.Code != nil {
		if code := strings.TrimSpace(*input.Code); code != "" && code != role.Code {
			updates["code"] = code
		}
	}
	if input.Forbidden != nil {
		updates["forbidden"] = *input.Forbidden
	}
	if input.Remark != nil {
		updates["remark"] = strings.TrimSpace(*input.Remark)
	}

	if len(updates) == 0 {
		return &role, nil
	}

	if err := s.db.WithContext(ctx).Model(&role).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("role code already exists")
		}
		return nil, fmt.Errorf("role service: update role: %w", err)
	}

	if err := s.db.WithContext(ctx).Preload("Permissions").First(&role, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("role service: reload role: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "role.update",
		Resource: role.ID,
		Result:   "success",
		Metadata: updates,
	})

	return &role, nil
}

// SetPermissions replaces the role's permission bindings inside one
// transaction: the existing set is removed, the new one inserted, and any
// failure rolls both steps back. An empty new set clears the bindings.
func (s *RoleService) SetPermissions(ctx context.Context, roleID string, permissionIDs []string) (*models.Role, error) {
	ctx = ensureContext(ctx)

	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, apperrors.NewBadRequest("role id is required")
	}

	cleanIDs := normaliseIDs(permissionIDs)

	var result *models.Role

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var role models.Role
		if err := tx.Preload("Permissions").First(&role, "id = ?", roleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoleNotFound
			}
			return fmt.Errorf("role service: load role: %w", err)
		}

		var permissions []models.Permission
		if len(cleanIDs) > 0 {
			if err := tx.Where("id IN ?", cleanIDs).Find(&permissions).Error; err != nil {
				return fmt.Errorf("role service: load permissions: %w", err)
			}
			if len(permissions) != len(cleanIDs) {
				return apperrors.NewBadRequest("one or more permissions were not found")
			}
		}

		if err := tx.Model(&role).Association("Permissions").Replace(permissions); err != nil {
			return fmt.Errorf("role service: replace permissions: %w", err)
		}

		if err := tx.Preload("Permissions").First(&role, "id = ?", roleID).Error; err != nil {
			return fmt.Errorf("role service: reload role: %w", err)
		}

		result = &role
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.NewTransactionFault("update role permissions", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "role.set_permissions",
		Resource: roleID,
		Result:   "success",
		Metadata: map[string]any{"permission_ids": cleanIDs},
	})

	return result, nil
}

// Delete removes the given roles and their bindings.
func (s *RoleService) Delete(ctx context.Context, ids []string) (int64, error) {
	ctx = ensureContext(ctx)

	cleanIDs := normaliseIDs(ids)
	if len(cleanIDs) == 0 {
		return 0, apperrors.NewBadRequest("at least one role id is required")
	}

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM role_permissions WHERE role_id IN ?", cleanIDs).Error; err != nil {
			return fmt.Errorf("role service: clear permission bindings: %w", err)
		}
		if err := tx.Exec("DELETE FROM user_roles WHERE role_id IN ?", cleanIDs).Error; err != nil {
			return fmt.Errorf("role service: clear user bindings: %w", err)
		}
		result := tx.Where("id IN ?", cleanIDs).Delete(&models.Role{})
		if result.Error != nil {
			return fmt.Errorf("role service: delete roles: %w", result.Error)
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, apperrors.NewTransactionFault("delete role", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "role.delete",
		Resource: strings.Join(cleanIDs, ","),
		Result:   "success",
	})

	return deleted, nil
}

// ListValid returns enabled roles as label/value options, newest first.
func (s *RoleService) ListValid(ctx context.Context) ([]RoleOption, error) {
	ctx = ensureContext(ctx)

	var roles []models.Role
	if err := s.db.WithContext(ctx).
		Where("forbidden = ?", false).
		Order("created_at DESC").
		Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("role service: list valid roles: %w", err)
	}

	options := make([]RoleOption, 0, len(roles))
	for _, role := range roles {
		options = append(options, RoleOption{Label: role.Name, Value: role.ID})
	}
	return options, nil
}

// Tree returns every role as a selection tree node for the assignment editor.
func (s *RoleService) Tree(ctx context.Context) ([]RoleNode, error) {
	ctx = ensureContext(ctx)

	var roles []models.Role
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("role service: load roles: %w", err)
	}

	nodes := make([]RoleNode, 0, len(roles))
	for _, role := range roles {
		nodes = append(nodes, RoleNode{Key: role.ID, Title: role.Name, Code: role.Code, IsLeaf: true})
	}
	return nodes, nil
}

// CheckCode reports the role holding the code, excluding the record identified
// by excludeID. A nil result means the code is free.
func (s *RoleService) CheckCode(ctx context.Context, code, excludeID string) (*models.Role, error) {
	ctx = ensureContext(ctx)

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}

	query := s.db.WithContext(ctx).Where("code = ?", code)
	if excludeID = strings.TrimSpace(excludeID); excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	var role models.Role
	err := query.First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("role service: check code: %w", err)
	}
	return &role, nil
}
