package database

import (
	"gorm.io/gorm"

	"github.com/kalendlab/admin-core/internal/models"
	"github.com/kalendlab/admin-core/pkg/crypto"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.Permission{},
		&models.Menu{},
		&models.MenuClosure{},
		&models.CacheEntry{},
		&models.AuditLog{},
	)
}

// systemMenus are the leaves provisioned on first start. Each leaf gets the
// default CRUD permission set bound to the administrator role.
var systemMenus = []struct {
	Title string
	Path  string
	Icon  string
	Sort  int
}{
	{"Users", "/user", "user", 1},
	{"Roles", "/role", "team", 2},
	{"Menus", "/menu", "menu", 3},
	{"Permissions", "/permission", "safety", 4},
}

var crudCodes = []struct {
	Code string
	Name string
}{
	{models.PermissionMethodPost, "Create"},
	{models.PermissionMethodDelete, "Delete"},
	{models.PermissionMethodGet, "Read"},
	{models.PermissionMethodPatch, "Update"},
}

// SeedData populates the administrator role and account plus the system menu
// tree. It is idempotent: an existing menu tree is left untouched.
func SeedData(db *gorm.DB) error {
	var adminRole models.Role
	if err := db.Where(models.Role{Code: "admin"}).
		Attrs(models.Role{Name: "Administrator", Remark: "Full system access"}).
		FirstOrCreate(&adminRole).Error; err != nil {
		return err
	}

	var adminUser models.User
	err := db.Where("account = ?", "admin").First(&adminUser).Error
	if err == gorm.ErrRecordNotFound {
		hash, hashErr := crypto.HashPassword("admin@123")
		if hashErr != nil {
			return hashErr
		}
		adminUser = models.User{
			Account:  "admin",
			Name:     "Administrator",
			Password: hash,
			Status:   models.UserStatusNormal,
		}
		if err = db.Create(&adminUser).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	if err := db.Model(&adminUser).Association("Roles").Append(&adminRole); err != nil {
		return err
	}

	var menuCount int64
	if err := db.Model(&models.Menu{}).Count(&menuCount).Error; err != nil {
		return err
	}
	if menuCount > 0 {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		root := models.Menu{
			Title:      "System Management",
			Icon:       "setting",
			Sort:       1,
			ShowExpand: true,
		}
		if err := tx.Create(&root).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.MenuClosure{AncestorID: root.ID, DescendantID: root.ID, Depth: 0}).Error; err != nil {
			return err
		}

		var grants []models.Permission
		for _, leaf := range systemMenus {
			menu := models.Menu{
				Title:    leaf.Title,
				Path:     leaf.Path,
				Icon:     leaf.Icon,
				IsLeaf:   true,
				Sort:     leaf.Sort,
				ParentID: &root.ID,
			}
			if err := tx.Create(&menu).Error; err != nil {
				return err
			}
			closures := []models.MenuClosure{
				{AncestorID: menu.ID, DescendantID: menu.ID, Depth: 0},
				{AncestorID: root.ID, DescendantID: menu.ID, Depth: 1},
			}
			if err := tx.Create(&closures).Error; err != nil {
				return err
			}

			for _, crud := range crudCodes {
				grants = append(grants, models.Permission{
					Name:   crud.Name,
					Code:   crud.Code,
					Method: crud.Code,
					Path:   "*",
					MenuID: &menu.ID,
				})
			}
		}

		if err := tx.Create(&grants).Error; err != nil {
			return err
		}
		return tx.Model(&adminRole).Association("Permissions").Replace(&grants)
	})
}
