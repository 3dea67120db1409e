package models

// Role groups permissions and is granted to users many-to-many.
type Role struct {
	BaseModel

	Name      string `gorm:"not null" json:"name"`
	Code      string `gorm:"uniqueIndex;not null" json:"code"`
	Forbidden bool   `gorm:"default:false" json:"forbidden"`
	Remark    string `json:"remark"`

	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions,omitempty"`
	Users       []User       `gorm:"many2many:user_roles;" json:"users,omitempty"`
}
