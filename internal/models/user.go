package models

import "time"

// Account status values.
const (
	UserStatusFrozen = 0
	UserStatusNormal = 1
)

// User describes an admin console account holding roles.
type User struct {
	BaseModel

	Account  string `gorm:"uniqueIndex;not null" json:"account"`
	Name     string `json:"name"`
	Password string `gorm:"not null" json:"-"`

	// Status is 1 for normal accounts and 0 for frozen ones.
	Status int `gorm:"default:1" json:"status"`

	Unit     string `json:"unit"`
	Position string `json:"position"`
	Remark   string `json:"remark"`

	// FailedAttempts counts consecutive wrong passwords; the account freezes
	// once it reaches the lockout threshold.
	FailedAttempts int        `gorm:"default:0" json:"-"`
	FrozenAt       *time.Time `json:"-"`

	Roles []Role `gorm:"many2many:user_roles;" json:"roles,omitempty"`
}
