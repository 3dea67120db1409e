package acl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleRoutes() []DiscoveredRoute {
	return []DiscoveredRoute{
		{Controller: "menu", Prefix: "menu", Path: "", Method: MethodGet},
		{Controller: "menu", Prefix: "menu", Path: ":id", Method: MethodGet},
		{Controller: "menu", Prefix: "menu", Path: "tree/:user", Method: MethodGet},
		{Controller: "menu", Prefix: "menu", Path: "", Method: MethodPost},
		{Controller: "role", Prefix: "role", Path: "", Method: MethodGet},
		{Controller: "role", Prefix: "role", Path: ":id", Method: MethodGet},
		{Controller: "auth", Prefix: "auth", Path: "login", Method: MethodPost},
	}
}

func TestBuildMatchTableLookup(t *testing.T) {
	table, err := BuildMatchTable("/api", sampleRoutes(), ExclusionSpec{})
	require.NoError(t, err)
	require.Equal(t, "/api", table.Prefix())

	m, ok := table.Lookup(MethodGet, "/api/menu")
	require.True(t, ok)
	require.Equal(t, "/api/menu", m.Pattern)
	require.False(t, m.Excluded)

	m, ok = table.Lookup(MethodGet, "/api/menu/42")
	require.True(t, ok)
	require.Equal(t, "/api/menu/:id", m.Pattern)

	m, ok = table.Lookup(MethodGet, "/api/menu/tree/u-1")
	require.True(t, ok)
	require.Equal(t, "/api/menu/tree/:user", m.Pattern)

	_, ok = table.Lookup(MethodDelete, "/api/menu/42")
	require.False(t, ok)

	_, ok = table.Lookup(MethodGet, "/api/unknown")
	require.False(t, ok)
}

func TestBuildMatchTableDeterministic(t *testing.T) {
	spec := ExclusionSpec{Controllers: []string{"auth"}}

	first, err := BuildMatchTable("/api", sampleRoutes(), spec)
	require.NoError(t, err)
	second, err := BuildMatchTable("/api", sampleRoutes(), spec)
	require.NoError(t, err)

	for _, method := range Methods {
		a, b := first.Bucket(method), second.Bucket(method)
		require.Equal(t, len(a), len(b), "bucket %s", method)
		for i := range a {
			require.Equal(t, a[i].Pattern, b[i].Pattern)
			require.Equal(t, a[i].Excluded, b[i].Excluded)
		}
	}
}

func TestBuildMatchTableFirstMatchWins(t *testing.T) {
	routes := []DiscoveredRoute{
		{Controller: "files", Prefix: "files", Path: "*", Method: MethodGet},
		{Controller: "files", Prefix: "files", Path: "static", Method: MethodGet},
	}

	table, err := BuildMatchTable("/api", routes, ExclusionSpec{})
	require.NoError(t, err)

	// The wildcard was discovered first, so it shadows the literal route.
	m, ok := table.Lookup(MethodGet, "/api/files/static")
	require.True(t, ok)
	require.Equal(t, "/api/files/*", m.Pattern)
}

func TestBuildMatchTableControllerExclusionWins(t *testing.T) {
	routes := sampleRoutes()
	spec := ExclusionSpec{
		Controllers: []string{"auth"},
		Handlers: []HandlerRef{
			{Method: MethodGet, Path: "/api/menu/:id"},
			{Method: MethodGet, Path: "/api/role/:id"},
		},
	}

	table, err := BuildMatchTable("/api", routes, spec)
	require.NoError(t, err)

	// Controller-level exclusion opens every verb of the controller.
	m, ok := table.Lookup(MethodPost, "/api/auth/login")
	require.True(t, ok)
	require.True(t, m.Excluded)

	// Handler-level exclusions open only the named pairs.
	m, ok = table.Lookup(MethodGet, "/api/menu/42")
	require.True(t, ok)
	require.True(t, m.Excluded)

	m, ok = table.Lookup(MethodGet, "/api/menu")
	require.True(t, ok)
	require.False(t, m.Excluded)

	m, ok = table.Lookup(MethodPost, "/api/menu")
	require.True(t, ok)
	require.False(t, m.Excluded)
}

func TestBuildMatchTableExcludedControllerIgnoresHandlerList(t *testing.T) {
	routes := []DiscoveredRoute{
		{Controller: "health", Prefix: "health", Path: "", Method: MethodGet},
		{Controller: "health", Prefix: "health", Path: "deep", Method: MethodGet},
	}
	spec := ExclusionSpec{
		Controllers: []string{"health"},
		// A contradictory handler list cannot re-protect the controller.
		Handlers: []HandlerRef{{Method: MethodGet, Path: "/api/health/deep"}},
	}

	table, err := BuildMatchTable("/api", routes, spec)
	require.NoError(t, err)

	for _, path := range []string{"/api/health", "/api/health/deep"} {
		m, ok := table.Lookup(MethodGet, path)
		require.True(t, ok, path)
		require.True(t, m.Excluded, path)
	}
}

func TestBuildMatchTableRejectsMalformedTemplate(t *testing.T) {
	routes := []DiscoveredRoute{
		{Controller: "menu", Prefix: "menu", Path: ":1bad", Method: MethodGet},
	}
	_, err := BuildMatchTable("/api", routes, ExclusionSpec{})
	require.Error(t, err)
}

func TestBuildMatchTableRejectsUnknownMethod(t *testing.T) {
	routes := []DiscoveredRoute{
		{Controller: "menu", Prefix: "menu", Path: "", Method: Method("HEAD")},
	}
	_, err := BuildMatchTable("/api", routes, ExclusionSpec{})
	require.Error(t, err)
}

func TestBuildMatchTableRejectsBadExclusionMethod(t *testing.T) {
	routes := []DiscoveredRoute{
		{Controller: "menu", Prefix: "menu", Path: ":id", Method: MethodGet},
	}
	// A typoed exclusion verb must fail the build instead of silently guarding
	// a route that was meant to stay open.
	spec := ExclusionSpec{
		Handlers: []HandlerRef{{Method: Method("GETT"), Path: "/api/menu/:id"}},
	}
	_, err := BuildMatchTable("/api", routes, spec)
	require.Error(t, err)
	require.Contains(t, err.Error(), "GETT")
}
