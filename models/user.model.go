package models

import (
	"gorm.io/gorm"
)

// User roles
const (
	RoleUser       = "USER"
	RoleInstructor = "INSTRUCTOR"
	RoleAdmin      = "ADMIN"
)

// User is the profile this service reads for contact phone, display name
// and notification preferences. Accounts are managed elsewhere.
type User struct {
	gorm.Model
	Name               string `gorm:"default:''" json:"name"`
	Email              string `gorm:"uniqueIndex;not null" json:"email"`
	Mobile             string `gorm:"default:''" json:"mobile"`
	Role               string `gorm:"default:'USER'" json:"role"` // USER, INSTRUCTOR, ADMIN
	EmailNotifications bool   `gorm:"default:true" json:"emailNotifications"`
	IsBlocked          bool   `gorm:"default:false" json:"isBlocked"`
	IsDeleted          bool   `gorm:"default:false" json:"-"`
}
