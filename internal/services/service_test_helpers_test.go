package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kalendlab/admin-core/internal/models"
)

func openServicesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// One shared in-memory database per test so pooled connections agree and
	// tests stay isolated from each other.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.Permission{},
		&models.Menu{},
		&models.MenuClosure{},
		&models.AuditLog{},
		&models.CacheEntry{},
	))

	return db
}

func newAuditService(t *testing.T, db *gorm.DB) *AuditService {
	t.Helper()
	svc, err := NewAuditService(db)
	require.NoError(t, err)
	return svc
}
