package maintenance

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kalendlab/admin-core/internal/cache"
	"github.com/kalendlab/admin-core/internal/models"
	"github.com/kalendlab/admin-core/internal/services"
)

func openMaintenanceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.CacheEntry{}, &models.AuditLog{}, &models.User{}))
	return db
}

func TestCleanerRunOnce(t *testing.T) {
	db := openMaintenanceTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store := cache.NewDatabaseStore(db)
	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	expired := models.CacheEntry{Key: "api:stale", Value: []byte("[]"), ExpiresAt: now.Add(-time.Minute)}
	fresh := models.CacheEntry{Key: "api:fresh", Value: []byte("[]"), ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, db.Create(&expired).Error)
	require.NoError(t, db.Create(&fresh).Error)

	stale := models.AuditLog{Action: "menu.delete", Result: "success"}
	require.NoError(t, db.Create(&stale).Error)
	require.NoError(t, db.Model(&stale).Update("created_at", now.AddDate(0, 0, -120)).Error)
	require.NoError(t, audit.Log(context.Background(), services.AuditEntry{Action: "auth.login", Result: "success"}))

	cleaner := NewCleaner(store, audit,
		WithNow(func() time.Time { return now }),
		WithAuditRetentionDays(90),
	)
	require.NoError(t, cleaner.RunOnce(context.Background()))

	var keys []string
	require.NoError(t, db.Model(&models.CacheEntry{}).Pluck("key", &keys).Error)
	require.Equal(t, []string{"api:fresh"}, keys)

	var count int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestCleanerStartRegistersJobs(t *testing.T) {
	db := openMaintenanceTestDB(t)
	store := cache.NewDatabaseStore(db)
	audit, err := services.NewAuditService(db)
	require.NoError(t, err)

	cleaner := NewCleaner(store, audit)
	require.NoError(t, cleaner.Start())
	<-cleaner.Stop().Done()
}

func TestCleanerRejectsBadSchedule(t *testing.T) {
	db := openMaintenanceTestDB(t)
	cleaner := NewCleaner(cache.NewDatabaseStore(db), nil, WithCacheSchedule("not-a-spec"))
	require.Error(t, cleaner.Start())
}
