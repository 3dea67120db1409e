package cache

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kalendlab/admin-core/internal/models"
)

func setupStore(t *testing.T) *DatabaseStore {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.CacheEntry{}))

	return NewDatabaseStore(db)
}

func TestDatabaseStoreSetGetDelete(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "api:u1", []byte(`["/menu:get"]`), time.Minute))

	value, found, err := store.Get(ctx, "api:u1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `["/menu:get"]`, string(value))

	require.NoError(t, store.Delete(ctx, "api:u1"))

	_, found, err = store.Get(ctx, "api:u1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDatabaseStoreMissingKey(t *testing.T) {
	store := setupStore(t)

	value, found, err := store.Get(context.Background(), "api:absent")
	require.NoError(t, err)
	require.False(t, found)
	require.Nil(t, value)
}

func TestDatabaseStoreExpiry(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "api:u2", []byte("x"), -time.Second))

	// A zero ttl stores without expiry; a past expiry is treated as missing.
	entry := models.CacheEntry{Key: "api:u3", Value: []byte("y"), ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, store.db.Create(&entry).Error)

	_, found, err := store.Get(ctx, "api:u3")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDatabaseStorePurgeExpired(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.db.Create(&models.CacheEntry{Key: "stale", Value: []byte("a"), ExpiresAt: now.Add(-time.Hour)}).Error)
	require.NoError(t, store.db.Create(&models.CacheEntry{Key: "fresh", Value: []byte("b"), ExpiresAt: now.Add(time.Hour)}).Error)
	require.NoError(t, store.db.Create(&models.CacheEntry{Key: "pinned", Value: []byte("c")}).Error)

	purged, err := store.PurgeExpired(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)

	var remaining int64
	require.NoError(t, store.db.Model(&models.CacheEntry{}).Count(&remaining).Error)
	require.EqualValues(t, 2, remaining)
}
