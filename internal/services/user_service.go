package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/kalendlab/admin-core/internal/models"
	"github.com/kalendlab/admin-core/pkg/crypto"
	apperrors "github.com/kalendlab/admin-core/pkg/errors"
)

// maxFailedAttempts freezes the account after this many consecutive wrong passwords.
const maxFailedAttempts = 5

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrAccountNotFound is the login-specific variant callers surface verbatim.
	ErrAccountNotFound = apperrors.New("ACCOUNT_NOT_FOUND", "Account does not exist, please re-enter", http.StatusUnauthorized)
)

// CreateUserInput describes the fields accepted when creating a user.
type CreateUserInput struct {
	Account  string
	Name     string
	Password string
	Unit     string
	Position string
	Remark   string
	RoleIDs  []string
}

// UpdateUserInput enumerates mutable user attributes.
type UpdateUserInput struct {
	Name     *string
	Unit     *string
	Position *string
	Remark   *string
	Status   *int
}

// ListUsersOptions controls pagination and filters for user listing.
type ListUsersOptions struct {
	Page       int
	PageSize   int
	Name       string
	ExcludeIDs []string
}

// UserService manages account lifecycle, credential checks and role binding.
type UserService struct {
	db           *gorm.DB
	auditService *AuditService
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, auditService *AuditService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db, auditService: auditService}, nil
}

// defaultPassword derives the initial password handed to freshly created or
// reset accounts.
func defaultPassword(account string) string {
	account = strings.TrimSpace(account)
	if len(account) > 15 {
		account = account[len(account)-15:]
	}
	if account == "" {
		return "123456A!"
	}
	return account + "@123"
}

// Create provisions a new user with a hashed password and optional role binding.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	account := strings.TrimSpace(input.Account)
	name := strings.TrimSpace(input.Name)
	if account == "" {
		return nil, apperrors.NewBadRequest("account is required")
	}
	if name == "" {
		return nil, apperrors.NewBadRequest("name is required")
	}

	password := strings.TrimSpace(input.Password)
	if password == "" {
		password = defaultPassword(account)
	}
	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Account:  account,
		Name:     name,
		Password: hashed,
		Status:   models.UserStatusNormal,
		Unit:     strings.TrimSpace(input.Unit),
		Position: strings.TrimSpace(input.Position),
		Remark:   strings.TrimSpace(input.Remark),
	}

	roleIDs := normaliseIDs(input.RoleIDs)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}

		if len(roleIDs) > 0 {
			var roles []models.Role
			if err := tx.Where("id IN ?", roleIDs).Find(&roles).Error; err != nil {
				return fmt.Errorf("user service: load roles: %w", err)
			}
			if len(roles) != len(roleIDs) {
				return apperrors.NewBadRequest("one or more roles were not found")
			}
			if err := tx.Model(user).Association("Roles").Append(&roles); err != nil {
				return fmt.Errorf("user service: assign roles: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("account already exists")
		}
		return nil, apperrors.NewTransactionFault("create user", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "user.create",
		Resource: user.ID,
		Result:   "success",
		Metadata: map[string]any{"account": user.Account, "role_ids": roleIDs},
	})

	return user, nil
}

// GetByID loads a user by identifier including role bindings.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Roles").
		First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// List retrieves users matching the supplied filters with pagination. A page
// size of zero returns the full result set.
func (s *UserService) List(ctx context.Context, opts ListUsersOptions) ([]models.User, int64, error) {
	ctx = ensureContext(ctx)

	page, limit := normalisePage(opts.Page, opts.PageSize)

	query := s.db.WithContext(ctx).Model(&models.User{})
	if name := strings.TrimSpace(opts.Name); name != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	if ids := normaliseIDs(opts.ExcludeIDs); len(ids) > 0 {
		query = query.Where("id NOT IN ?", ids)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: count users: %w", err)
	}

	query = query.Order("created_at DESC").Preload("Roles")
	if limit > 0 {
		query = query.Offset((page - 1) * limit).Limit(limit)
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: list users: %w", err)
	}

	return users, total, nil
}

// Update persists mutable attributes for an existing user.
func (s *UserService) Update(ctx context.Context, id string, input UpdateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}

	updates := map[string]any{}
	if input.Name != nil {
		if name := strings.TrimSpace(*input.Name); name != "" {
			updates["name"] = name
		}
	}
	if input.Unit != nil {
		updates["unit"] = strings.TrimSpace(*input.Unit)
	}
	if input.Position != nil {
		updates["position"] = strings.TrimSpace(*input.Position)
	}
	if input.Remark != nil {
		updates["remark"] = strings.TrimSpace(*input.Remark)
	}
	if input.Status != nil {
		if *input.Status != models.UserStatusNormal && *input.Status != models.UserStatusFrozen {
			return nil, apperrors.NewBadRequest("status must be 0 or 1")
		}
		updates["status"] = *input.Status
		if *input.Status == models.UserStatusNormal {
			updates["failed_attempts"] = 0
			updates["frozen_at"] = nil
		}
	}

	if len(updates) == 0 {
		return &user, nil
	}

	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("user service: update user: %w", err)
	}

	if err := s.db.WithContext(ctx).Preload("Roles").First(&user, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("user service: reload user: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "user.update",
		Resource: user.ID,
		Result:   "success",
		Metadata: updates,
	})

	return &user, nil
}

// SetRoles replaces role assignments for the specified user inside one
// transaction. An empty set clears every binding.
func (s *UserService) SetRoles(ctx context.Context, id string, roleIDs []string) (*models.User, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(id)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user id is required")
	}

	cleanIDs := normaliseIDs(roleIDs)

	var result *models.User

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Preload("Roles").First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("user service: load user: %w", err)
		}

		var roles []models.Role
		if len(cleanIDs) > 0 {
			if err := tx.Where("id IN ?", cleanIDs).Find(&roles).Error; err != nil {
				return fmt.Errorf("user service: load roles: %w", err)
			}
			if len(roles) != len(cleanIDs) {
				return apperrors.NewBadRequest("one or more roles were not found")
			}
		}

		if err := tx.Model(&user).Association("Roles").Replace(roles); err != nil {
			return fmt.Errorf("user service: replace roles: %w", err)
		}

		if err := tx.Preload("Roles").First(&user, "id = ?", userID).Error; err != nil {
			return fmt.Errorf("user service: reload user: %w", err)
		}

		result = &user
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.NewTransactionFault("update user roles", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "user.set_roles",
		Resource: userID,
		Result:   "success",
		Metadata: map[string]any{"role_ids": cleanIDs},
	})

	return result, nil
}

// Delete removes the given users and their role bindings.
func (s *UserService) Delete(ctx context.Context, ids []string) (int64, error) {
	ctx = ensureContext(ctx)

	cleanIDs := normaliseIDs(ids)
	if len(cleanIDs) == 0 {
		return 0, apperrors.NewBadRequest("at least one user id is required")
	}

	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM user_roles WHERE user_id IN ?", cleanIDs).Error; err != nil {
			return fmt.Errorf("user service: clear role bindings: %w", err)
		}
		result := tx.Where("id IN ?", cleanIDs).Delete(&models.User{})
		if result.Error != nil {
			return fmt.Errorf("user service: delete users: %w", result.Error)
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, apperrors.NewTransactionFault("delete user", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "user.delete",
		Resource: strings.Join(cleanIDs, ","),
		Result:   "success",
	})

	return deleted, nil
}

// ChangePassword replaces the password for the given account. An empty
// password resets it to the derived default.
func (s *UserService) ChangePassword(ctx context.Context, id, password string) error {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("user service: load user: %w", err)
	}

	password = strings.TrimSpace(password)
	if password == "" {
		password = defaultPassword(user.Account)
	}

	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("user service: hash password: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&user).Update("password", hashed).Error; err != nil {
		return fmt.Errorf("user service: update password: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "user.change_password",
		Resource: user.ID,
		Result:   "success",
	})

	return nil
}

// CheckAccount reports the user holding the account, excluding the record
// identified by excludeID. A nil result means the account is free.
func (s *UserService) CheckAccount(ctx context.Context, account, excludeID string) (*models.User, error) {
	ctx = ensureContext(ctx)

	account = strings.TrimSpace(account)
	if account == "" {
		return nil, nil
	}

	query := s.db.WithContext(ctx).Where("account = ?", account)
	if excludeID = strings.TrimSpace(excludeID); excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}

	var user models.User
	err := query.First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user service: check account: %w", err)
	}
	return &user, nil
}

// VerifyCredentials authenticates a login attempt. Wrong passwords bump the
// failure counter and freeze the account once it reaches the threshold; a
// successful login resets the counter.
func (s *UserService) VerifyCredentials(ctx context.Context, account, password string) (*models.User, error) {
	ctx = ensureContext(ctx)

	account = strings.TrimSpace(account)
	if account == "" || password == "" {
		return nil, apperrors.NewBadRequest("account and password are required")
	}

	var user models.User
	err := s.db.WithContext(ctx).Preload("Roles").Where("account = ?", account).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load account: %w", err)
	}

	if user.Status == models.UserStatusFrozen {
		return nil, apperrors.ErrAccountFrozen
	}

	if !crypto.VerifyPassword(user.Password, password) {
		updates := map[string]any{"failed_attempts": user.FailedAttempts + 1}
		if user.FailedAttempts+1 >= maxFailedAttempts {
			now := time.Now()
			updates["status"] = models.UserStatusFrozen
			updates["frozen_at"] = &now
		}
		if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("user service: record failed attempt: %w", err)
		}

		recordAudit(s.auditService, ctx, AuditEntry{
			UserID:   &user.ID,
			Account:  user.Account,
			Action:   "user.login",
			Result:   "failure",
			Metadata: map[string]any{"failed_attempts": user.FailedAttempts + 1},
		})

		if _, frozen := updates["frozen_at"]; frozen {
			return nil, apperrors.ErrAccountFrozen
		}
		return nil, apperrors.ErrInvalidCredentials
	}

	if user.FailedAttempts != 0 || user.FrozenAt != nil {
		if err := s.db.WithContext(ctx).Model(&user).
			Updates(map[string]any{"failed_attempts": 0, "frozen_at": nil}).Error; err != nil {
			return nil, fmt.Errorf("user service: reset failed attempts: %w", err)
		}
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		UserID:  &user.ID,
		Account: user.Account,
		Action:  "user.login",
		Result:  "success",
	})

	return &user, nil
}
