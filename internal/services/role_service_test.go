package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kalendlab/admin-core/internal/models"
	apperrors "github.com/kalendlab/admin-core/pkg/errors"
)

func TestRoleServiceCreateValidation(t *testing.T) {
	db := openServicesTestDB(t)
	svc, err := NewRoleService(db, newAuditService(t, db))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Create(ctx, CreateRoleInput{Code: "no-name"})
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, 400, appErr.StatusCode)

	_, err = svc.Create(ctx, CreateRoleInput{Name: "No Code"})
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, 400, appErr.StatusCode)

	role, err := svc.Create(ctx, CreateRoleInput{Name: "Operator", Code: "operator"})
	require.NoError(t, err)
	require.NotEmpty(t, role.ID)

	// Duplicate role codes are a conflict.
	_, err = svc.Create(ctx, CreateRoleInput{Name: "Other", Code: "operator"})
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, 409, appErr.StatusCode)
}

func TestRoleServiceSetPermissions(t *testing.T) {
	db := openServicesTestDB(t)
	svc, err := NewRoleService(db, newAuditService(t, db))
	require.NoError(t, err)
	ctx := context.Background()

	role, err := svc.Create(ctx, CreateRoleInput{Name: "Editor", Code: "editor"})
	require.NoError(t, err)

	read := &models.Permission{Name: "Read", Code: "get", Method: "get", Path: "*"}
	write := &models.Permission{Name: "Create", Code: "post", Method: "post", Path: "*"}
	require.NoError(t, db.Create(read).Error)
	require.NoError(t, db.Create(write).Error)

	updated, err := svc.SetPermissions(ctx, role.ID, []string{read.ID, write.ID})
	require.NoError(t, err)
	require.Len(t, updated.Permissions, 2)

	// Replacing with a smaller set drops the rest.
	updated, err = svc.SetPermissions(ctx, role.ID, []string{read.ID})
	require.NoError(t, err)
	require.Len(t, updated.Permissions, 1)
	require.Equal(t, read.ID, updated.Permissions[0].ID)

	// A set containing an unknown id fails and leaves the binding untouched.
	_, err = svc.SetPermissions(ctx, role.ID, []string{read.ID, "missing"})
	require.Error(t, err)
	current, err := svc.GetByID(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, current.Permissions, 1)

	// The empty set clears everything and remains a successful no-op when
	// repeated with nothing left to delete.
	updated, err = svc.SetPermissions(ctx, role.ID, nil)
	require.NoError(t, err)
	require.Len(t, updated.Permissions, 0)

	updated, err = svc.SetPermissions(ctx, role.ID, nil)
	require.NoError(t, err)
	require.Len(t, updated.Permissions, 0)
}

func TestRoleServiceListValidAndCheckCode(t *testing.T) {
	db := openServicesTestDB(t)
	svc, err := NewRoleService(db, newAuditService(t, db))
	require.NoError(t, err)
	ctx := context.Background()

	active, err := svc.Create(ctx, CreateRoleInput{Name: "Active", Code: "active"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateRoleInput{Name: "Disabled", Code: "disabled", Forbidden: true})
	require.NoError(t, err)

	options, err := svc.ListValid(ctx)
	require.NoError(t, err)
	require.Len(t, options, 1)
	require.Equal(t, active.ID, options[0].Value)
	require.Equal(t, "Active", options[0].Label)

	conflict, err := svc.CheckCode(ctx, "active", "")
	require.NoError(t, err)
	require.NotNil(t, conflict)

	conflict, err = svc.CheckCode(ctx, "active", active.ID)
	require.NoError(t, err)
	require.Nil(t, conflict)

	conflict, err = svc.CheckCode(ctx, "", "")
	require.NoError(t, err)
	require.Nil(t, conflict)
}

func TestRoleServiceDeleteClearsBindings(t *testing.T) {
	db := openServicesTestDB(t)
	svc, err := NewRoleService(db, newAuditService(t, db))
	require.NoError(t, err)
	ctx := context.Background()

	role, err := svc.Create(ctx, CreateRoleInput{Name: "Doomed", Code: "doomed"})
	require.NoError(t, err)

	perm := &models.Permission{Name: "Read", Code: "get", Method: "get", Path: "*"}
	require.NoError(t, db.Create(perm).Error)
	_, err = svc.SetPermissions(ctx, role.ID, []string{perm.ID})
	require.NoError(t, err)

	user := &models.User{Account: "role-holder", Name: "Holder", Password: "x"}
	require.NoError(t, db.Create(user).Error)
	require.NoError(t, db.Model(user).Association("Roles").Append(&models.Role{BaseModel: models.BaseModel{ID: role.ID}}))

	deleted, err := svc.Delete(ctx, []string{role.ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	_, err = svc.GetByID(ctx, role.ID)
	require.ErrorIs(t, err, ErrRoleNotFound)

	var count int64
	require.NoError(t, db.Table("role_permissions").Where("role_id = ?", role.ID).Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, db.Table("user_roles").Where("role_id = ?", role.ID).Count(&count).Error)
	require.Zero(t, count)

	// The permission row itself survives a role deletion.
	require.NoError(t, db.Model(&models.Permission{}).Where("id = ?", perm.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestRoleServiceUpdate(t *testing.T) {
	db := openServicesTestDB(t)
	svc, err := NewRoleService(db, newAuditService(t, db))
	require.NoError(t, err)
	ctx := context.Background()

	role, err := svc.Create(ctx, CreateRoleInput{Name: "Before", Code: "before"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateRoleInput{Name: "Taken", Code: "taken"})
	require.NoError(t, err)

	name := "After"
	forbidden := true
	updated, err := svc.Update(ctx, role.ID, UpdateRoleInput{Name: &name, Forbidden: &forbidden})
	require.NoError(t, err)
	require.Equal(t, "After", updated.Name)
	require.True(t, updated.Forbidden)

	// Renaming onto a taken code conflicts.
	code := "taken"
	_, err = svc.Update(ctx, role.ID, UpdateRoleInput{Code: &code})
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, 409, appErr.StatusCode)

	_, err = svc.Update(ctx, "missing", UpdateRoleInput{Name: &name})
	require.ErrorIs(t, err, ErrRoleNotFound)
}
