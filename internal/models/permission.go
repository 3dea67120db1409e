package models

// Permission method values. An empty method marks a permission that is not
// bound to a concrete API verb.
const (
	PermissionMethodGet    = "get"
	PermissionMethodPost   = "post"
	PermissionMethodPut    = "put"
	PermissionMethodPatch  = "patch"
	PermissionMethodDelete = "delete"
)

// Permission is one grantable action. Permissions auto-provisioned for a leaf
// menu carry MenuID; free-floating grants may instead reference a user or a
// department directly (consumed by the bulk rebind endpoint).
type Permission struct {
	BaseModel

	Name      string `gorm:"not null" json:"name"`
	Code      string `gorm:"not null;index" json:"code"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Forbidden bool   `gorm:"default:false" json:"forbidden"`
	Remark    string `json:"remark"`

	MenuID *string `gorm:"type:uuid;index" json:"menu_id"`
	Menu   *Menu   `gorm:"foreignKey:MenuID;constraint:OnDelete:CASCADE" json:"menu,omitempty"`

	UserID     *string `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Department *string `gorm:"index" json:"department,omitempty"`

	Roles []Role `gorm:"many2many:role_permissions;" json:"roles,omitempty"`
}
