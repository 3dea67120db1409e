package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kalendlab/admin-core/internal/models"
	apperrors "github.com/kalendlab/admin-core/pkg/errors"
)

func TestPermissionServiceListRequiresMenu(t *testing.T) {
	db := openServicesTestDB(t)
	svc, err := NewPermissionService(db, newAuditService(t, db))
	require.NoError(t, err)

	_, _, err = svc.List(context.Background(), ListPermissionsOptions{})
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, 400, appErr.StatusCode)
}

func TestPermissionServiceCRUD(t *testing.T) {
	db := openServicesTestDB(t)
	svc, err := NewPermissionService(db, newAuditService(t, db))
	require.NoError(t, err)
	ctx := context.Background()

	menu := &models.Menu{Title: "Reports", Path: "/reports", IsLeaf: true, Sort: 1}
	require.NoError(t, db.Create(menu).Error)

	created, err := svc.Create(ctx, CreatePermissionInput{
		Name:   "Export",
		Code:   "Export",
		Method: "GET",
		Path:   "export/*",
		MenuID: &menu.ID,
	})
	require.NoError(t, err)
	require.Equal(t, "export", created.Code)
	require.Equal(t, "get", created.Method)

	_, err = svc.Create(ctx, CreatePermissionInput{Name: "Bad", Code: "bad", Method: "head"})
	require.Error(t, err)

	loaded, err := svc.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.Menu)
	require.Equal(t, menu.ID, loaded.Menu.ID)

	list, total, err := svc.List(ctx, ListPermissionsOptions{MenuID: menu.ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, list, 1)

	forbidden := true
	updated, err := svc.Update(ctx, created.ID, UpdatePermissionInput{Forbidden: &forbidden})
	require.NoError(t, err)
	require.True(t, updated.Forbidden)

	conflict, err := svc.CheckCode(ctx, "export", "", menu.ID)
	require.NoError(t, err)
	require.NotNil(t, conflict)
	conflict, err = svc.CheckCode(ctx, "export", created.ID, menu.ID)
	require.NoError(t, err)
	require.Nil(t, conflict)

	deleted, err := svc.Delete(ctx, []string{created.ID})
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
	_, err = svc.GetByID(ctx, created.ID)
	require.ErrorIs(t, err, ErrPermissionNotFound)
}

func TestPermissionServiceRebindDirect(t *testing.T) {
	db := openServicesTestDB(t)
	svc, err := NewPermissionService(db, newAuditService(t, db))
	require.NoError(t, err)
	ctx := context.Background()

	// Neither user nor department is a validation failure.
	_, err = svc.RebindDirect(ctx, nil, "", "")
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, 400, appErr.StatusCode)

	grants := []DirectGrant{
		{Name: "Read", Code: "get", Method: "get", Path: "/reports"},
		{Name: "Create", Code: "post", Method: "post", Path: "/reports"},
	}

	rows, err := svc.RebindDirect(ctx, grants, "user-1", "")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// A second bind for another scope does not disturb the first.
	_, err = svc.RebindDirect(ctx, grants[:1], "", "ops")
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.Permission{}).Where("user_id = ?", "user-1").Count(&count).Error)
	require.EqualValues(t, 2, count)
	require.NoError(t, db.Model(&models.Permission{}).Where("department = ?", "ops").Count(&count).Error)
	require.EqualValues(t, 1, count)

	// Rebinding replaces, never appends.
	rows, err = svc.RebindDirect(ctx, grants[:1], "user-1", "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NoError(t, db.Model(&models.Permission{}).Where("user_id = ?", "user-1").Count(&count).Error)
	require.EqualValues(t, 1, count)

	// The empty set clears the scope and leaves the other scope alone.
	rows, err = svc.RebindDirect(ctx, nil, "user-1", "")
	require.NoError(t, err)
	require.Empty(t, rows)
	require.NoError(t, db.Model(&models.Permission{}).Where("user_id = ?", "user-1").Count(&count).Error)
	require.Zero(t, count)
	require.NoError(t, db.Model(&models.Permission{}).Where("department = ?", "ops").Count(&count).Error)
	require.EqualValues(t, 1, count)

	// Clearing an already-empty scope is still a successful no-op.
	rows, err = svc.RebindDirect(ctx, nil, "user-1", "")
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestPermissionServiceRebindDirectRollsBackOnFailure(t *testing.T) {
	db := openServicesTestDB(t)
	svc, err := NewPermissionService(db, newAuditService(t, db))
	require.NoError(t, err)
	ctx := context.Background()

	seed := []DirectGrant{{Name: "Read", Code: "get", Method: "get", Path: "/reports"}}
	_, err = svc.RebindDirect(ctx, seed, "user-2", "")
	require.NoError(t, err)

	// Inject an insert failure so the delete half must roll back.
	failing := false
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_permission_insert", func(tx *gorm.DB) {
		if failing && tx.Statement.Table == "permissions" {
			_ = tx.AddError(errors.New("injected insert failure"))
		}
	}))
	defer func() {
		require.NoError(t, db.Callback().Create().Remove("test:fail_permission_insert"))
	}()

	failing = true
	_, err = svc.RebindDirect(ctx, []DirectGrant{
		{Name: "Create", Code: "post", Method: "post", Path: "/reports"},
	}, "user-2", "")
	failing = false

	require.Error(t, err)
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "TRANSACTION_FAILED", appErr.Code)

	// The original grant survived the failed rebind.
	var rows []models.Permission
	require.NoError(t, db.Where("user_id = ?", "user-2").Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, "get", rows[0].Code)
}
