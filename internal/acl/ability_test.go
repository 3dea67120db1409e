package acl

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
)

func newTestStore(t *testing.T) cache.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.CacheEntry{}))
	return cache.NewDatabaseStore(db)
}

func TestParseAbility(t *testing.T) {
	a, ok := ParseAbility("/menu:GET")
	require.True(t, ok)
	require.Equal(t, "/menu", a.Path)
	require.Equal(t, "get", a.Code)

	// Split happens at the last colon so parameterised paths survive.
	a, ok = ParseAbility("/menu/:id:put")
	require.True(t, ok)
	require.Equal(t, "/menu/:id", a.Path)
	require.Equal(t, "put", a.Code)

	for _, s := range []string{"", "menu", ":get", "/menu:"} {
		_, ok := ParseAbility(s)
		require.False(t, ok, "token %q", s)
	}
}

func TestAbilityAllows(t *testing.T) {
	a := Ability{Path: "/menu/:id", Code: "get"}
	require.True(t, a.Allows(MethodGet, "/menu/42"))
	require.False(t, a.Allows(MethodPost, "/menu/42"))
	require.False(t, a.Allows(MethodGet, "/menu"))
	require.False(t, a.Allows(MethodGet, "/menu/42/children"))

	// A malformed template never grants anything.
	bad := Ability{Path: "/menu/:1bad", Code: "get"}
	require.False(t, bad.Allows(MethodGet, "/menu/42"))
}

func TestCompiledPatternMemoized(t *testing.T) {
	first := compiledPattern("/memo/:id")
	require.NotNil(t, first)
	require.Same(t, first, compiledPattern("/memo/:id"))

	// Equivalent templates share one compiled entry via canonicalization.
	require.Same(t, first, compiledPattern("memo/:id/"))

	// Malformed templates memoize as nil and keep denying.
	require.Nil(t, compiledPattern("/memo/:1bad"))
	require.Nil(t, compiledPattern("/memo/:1bad"))
	bad := Ability{Path: "/memo/:1bad", Code: "get"}
	require.False(t, bad.Allows(MethodGet, "/memo/42"))
}

func TestAbilityCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cacheStore := newTestStore(t)
	abilities := NewAbilityCache(cacheStore, time.Hour)

	_, found, err := abilities.Fetch(ctx, "u-1")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, abilities.Put(ctx, "u-1", []string{"/menu:get", "/menu/:id:get"}))

	got, found, err := abilities.Fetch(ctx, "u-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []string{"/menu:get", "/menu/:id:get"}, got)

	require.NoError(t, abilities.Drop(ctx, "u-1"))
	_, found, err = abilities.Fetch(ctx, "u-1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestAbilityCachePutNilBecomesEmptyArray(t *testing.T) {
	ctx := context.Background()
	abilities := NewAbilityCache(newTestStore(t), time.Hour)

	require.NoError(t, abilities.Put(ctx, "u-2", nil))

	got, found, err := abilities.Fetch(ctx, "u-2")
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestAbilityCacheNilTolerance(t *testing.T) {
	var abilities *AbilityCache

	_, found, err := abilities.Fetch(context.Background(), "u-1")
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, abilities.Drop(context.Background(), "u-1"))
	require.Error(t, abilities.Put(context.Background(), "u-1", nil))
}
