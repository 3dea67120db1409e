package models

// Menu is one node of the navigation tree. Only leaf menus carry a concrete
// Path and own permissions; non-leaf menus are pure groupings.
type Menu struct {
	BaseModel

	Title string `gorm:"not null" json:"title"`

	// Path is the route path for leaf menus. Uniqueness among leaves is
	// enforced by MenuService since groupings leave it empty.
	Path string `gorm:"index" json:"path"`

	Icon             string `json:"icon"`
	IsLeaf           bool   `gorm:"default:false" json:"is_leaf"`
	Forbidden        bool   `gorm:"default:false" json:"forbidden"`
	HideInBreadcrumb bool   `gorm:"default:false" json:"hide_in_breadcrumb"`
	ShowExpand       bool   `gorm:"default:false" json:"show_expand"`
	Sort             int    `gorm:"not null" json:"sort"`
	Remark           string `json:"remark"`

	ParentID *string `gorm:"type:uuid;index" json:"parent_id"`
	Parent   *Menu   `gorm:"foreignKey:ParentID;constraint:OnDelete:CASCADE" json:"-"`
	Children []Menu  `gorm:"foreignKey:ParentID" json:"children,omitempty"`

	Permissions []Permission `gorm:"foreignKey:MenuID" json:"permissions,omitempty"`
}

// MenuClosure materializes ancestor/descendant pairs for every menu, including
// the self pair at depth 0, so subtree queries are a single join.
type MenuClosure struct {
	AncestorID   string `gorm:"primaryKey;type:uuid" json:"ancestor_id"`
	DescendantID string `gorm:"primaryKey;type:uuid" json:"descendant_id"`
	Depth        int    `gorm:"not null" json:"depth"`
}
