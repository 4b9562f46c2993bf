package models

import (
	"time"

	"gorm.io/gorm"
)

// UserRole represents what a user is allowed to manage
type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

// Valid reports whether r is a known role
func (r UserRole) Valid() bool {
	return r == UserRoleAdmin || r == UserRoleUser
}

// User represents a user in the system
type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	FirebaseUID string   `gorm:"type:varchar(128);uniqueIndex:idx_users_firebase_uid,where:deleted_at IS NULL" json:"firebase_uid"`
	Name        string   `gorm:"type:varchar(255)" json:"name"`
	Email       string   `gorm:"type:varchar(255);uniqueIndex:idx_users_email,where:deleted_at IS NULL" json:"email"`
	Role        UserRole `gorm:"type:varchar(20);default:'user'" json:"role"`

	// Relationships
	Brands []Brand `gorm:"many2many:user_brands;" json:"brands,omitempty"`
}

// IsAdmin reports whether the user has the admin role
func (u User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
