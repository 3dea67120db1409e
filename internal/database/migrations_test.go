package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kalendlab/admin-core/internal/models"
	"github.com/kalendlab/admin-core/pkg/crypto"
)

func TestAutoMigrateAndSeed(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite"})
	require.NoError(t, err)

	require.NoError(t, AutoMigrateAndSeed(db))

	var admin models.User
	require.NoError(t, db.Preload("Roles").Where("account = ?", "admin").First(&admin).Error)
	require.True(t, crypto.VerifyPassword(admin.Password, "admin@123"))
	require.Len(t, admin.Roles, 1)
	require.Equal(t, "admin", admin.Roles[0].Code)

	var leaves []models.Menu
	require.NoError(t, db.Where("is_leaf = ?", true).Order("sort ASC").Find(&leaves).Error)
	require.Len(t, leaves, 4)
	require.Equal(t, "/user", leaves[0].Path)

	// Every leaf carries its closure self pair plus the root link.
	var closures int64
	require.NoError(t, db.Model(&models.MenuClosure{}).Count(&closures).Error)
	require.EqualValues(t, 9, closures)

	var role models.Role
	require.NoError(t, db.Preload("Permissions").Where("code = ?", "admin").First(&role).Error)
	require.Len(t, role.Permissions, 16)

	// Seeding twice leaves the tree untouched.
	require.NoError(t, AutoMigrateAndSeed(db))
	var menus int64
	require.NoError(t, db.Model(&models.Menu{}).Count(&menus).Error)
	require.EqualValues(t, 5, menus)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}
