package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/kalendlab/admin-core/internal/acl"
	iauth "github.com/kalendlab/admin-core/internal/auth"
	"github.com/kalendlab/admin-core/internal/handlers"
	"github.com/kalendlab/admin-core/internal/middleware"
	"github.com/kalendlab/admin-core/internal/services"
)

// APIPrefix is the global route prefix shared by the router and the match
// table.
const APIPrefix = "/api"

// handlerRoute is one declared handler inside a controller.
type handlerRoute struct {
	method  acl.Method
	path    string
	handler gin.HandlerFunc
}

// controllerRoutes declares every route of one controller. The declaration is
// the single source both for gin registration and for the ACL match table, so
// the two can never drift apart.
type controllerRoutes struct {
	name   string
	routes []handlerRoute
}

// NewRouter builds the Gin engine: it declares every controller route once,
// compiles the ACL match table from the declarations and registers the same
// declarations on the engine behind the auth and ACL middleware.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, abilities *acl.AbilityCache, adminRole string) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if abilities == nil {
		return nil, fmt.Errorf("ability cache must be provided")
	}

	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	userService, err := services.NewUserService(db, audit)
	if err != nil {
		return nil, err
	}
	menuService, err := services.NewMenuService(db, audit, abilities, adminRole)
	if err != nil {
		return nil, err
	}

	authHandler := handlers.NewAuthHandler(userService, menuService, jwt, abilities)
	userHandler, err := handlers.NewUserHandler(db)
	if err != nil {
		return nil, err
	}
	roleHandler, err := handlers.NewRoleHandler(db)
	if err != nil {
		return nil, err
	}
	menuHandler, err := handlers.NewMenuHandler(db, abilities, adminRole)
	if err != nil {
		return nil, err
	}

	controllers := []controllerRoutes{
		{name: "auth", routes: []handlerRoute{
			{acl.MethodPost, "login", authHandler.Login},
			{acl.MethodPost, "logout", authHandler.Logout},
		}},
		{name: "user", routes: []handlerRoute{
			{acl.MethodGet, "", userHandler.List},
			{acl.MethodGet, "check/:account", userHandler.CheckAccount},
			{acl.MethodGet, ":id", userHandler.Get},
			{acl.MethodPost, "", userHandler.Create},
			{acl.MethodPost, "delete", userHandler.BulkDelete},
			{acl.MethodPost, "roles/:id", userHandler.SetRoles},
			{acl.MethodPatch, "password/:id", userHandler.ChangePassword},
			{acl.MethodPatch, ":id", userHandler.Update},
			{acl.MethodDelete, ":id", userHandler.Delete},
		}},
		{name: "role", routes: []handlerRoute{
			{acl.MethodGet, "", roleHandler.List},
			{acl.MethodGet, "list/valid", roleHandler.ListValid},
			{acl.MethodGet, "tree", roleHandler.Tree},
			{acl.MethodGet, "check/:code", roleHandler.CheckCode},
			{acl.MethodGet, ":id", roleHandler.Get},
			{acl.MethodPost, "", roleHandler.Create},
			{acl.MethodPost, "delete", roleHandler.BulkDelete},
			{acl.MethodPatch, ":id", roleHandler.Update},
			{acl.MethodDelete, ":id", roleHandler.Delete},
		}},
		{name: "menu", routes: []handlerRoute{
			{acl.MethodGet, "", menuHandler.List},
			{acl.MethodGet, "tree/:user", menuHandler.Tree},
			{acl.MethodGet, "permission/tree", menuHandler.PermissionTree},
			{acl.MethodGet, "check/*", menuHandler.CheckPath},
			{acl.MethodGet, ":id", menuHandler.Get},
			{acl.MethodPost, "", menuHandler.Create},
			{acl.MethodPost, "delete", menuHandler.BulkDelete},
			{acl.MethodPatch, ":id", menuHandler.Update},
			{acl.MethodDelete, ":id", menuHandler.Delete},
		}},
	}

	discovered := make([]acl.DiscoveredRoute, 0, 48)
	for _, controller := range controllers {
		for _, route := range controller.routes {
			discovered = append(discovered, acl.DiscoveredRoute{
				Controller: controller.name,
				Prefix:     controller.name,
				Path:       route.path,
				Method:     route.method,
			})
		}
	}

	// The permission controller consumes the discovered routes itself, so it
	// is declared last against the feed collected so far plus its own routes.
	permissionController := controllerRoutes{name: "permission"}
	permissionRoutes := []struct {
		method acl.Method
		path   string
	}{
		{acl.MethodGet, ""},
		{acl.MethodGet, "acl/router"},
		{acl.MethodGet, "check/:code"},
		{acl.MethodGet, ":id"},
		{acl.MethodPost, ""},
		{acl.MethodPost, "delete"},
		{acl.MethodPost, "update"},
		{acl.MethodPatch, ":id"},
		{acl.MethodDelete, ":id"},
	}
	for _, route := range permissionRoutes {
		discovered = append(discovered, acl.DiscoveredRoute{
			Controller: permissionController.name,
			Prefix:     permissionController.name,
			Path:       route.path,
			Method:     route.method,
		})
	}

	permissionHandler, err := handlers.NewPermissionHandler(db, APIPrefix, discovered)
	if err != nil {
		return nil, err
	}
	permissionController.routes = []handlerRoute{
		{acl.MethodGet, "", permissionHandler.List},
		{acl.MethodGet, "acl/router", permissionHandler.Catalogue},
		{acl.MethodGet, "check/:code", permissionHandler.CheckCode},
		{acl.MethodGet, ":id", permissionHandler.Get},
		{acl.MethodPost, "", permissionHandler.Create},
		{acl.MethodPost, "delete", permissionHandler.BulkDelete},
		{acl.MethodPost, "update", permissionHandler.Rebind},
		{acl.MethodPatch, ":id", permissionHandler.Update},
		{acl.MethodDelete, ":id", permissionHandler.Delete},
	}
	controllers = append(controllers, permissionController)

	table, err := acl.BuildMatchTable(APIPrefix, discovered, acl.ExclusionSpec{
		Controllers: []string{"auth"},
		Handlers: []acl.HandlerRef{
			{Method: acl.MethodGet, Path: "/api/menu/:id"},
			{Method: acl.MethodGet, Path: "/api/role/:id"},
		},
	})
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	// Operational endpoints live outside the prefix and the match table.
	r.GET("/health", handlers.Health())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	group := r.Group(APIPrefix)
	group.Use(middleware.OptionalAuth(jwt))
	group.Use(middleware.ACL(table, abilities))

	for _, controller := range controllers {
		sub := group.Group("/" + controller.name)
		for _, route := range controller.routes {
			sub.Handle(string(route.method), ginPath(route.path), route.handler)
		}
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

// ginPath converts a canonical route template into gin syntax. Canonical
// templates use a bare trailing "*"; gin wants a named catch-all.
func ginPath(path string) string {
	if path == "*" {
		return "/*path"
	}
	if strings.HasSuffix(path, "/*") {
		return "/" + strings.TrimSuffix(path, "*") + "*path"
	}
	if path == "" {
		return ""
	}
	return "/" + path
}
