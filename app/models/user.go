package models

import (
	"time"
)

// User mirrors the CMS user record this service reads contact data from.
// It is never written by the webhook subsystem.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	FirstName string    `gorm:"type:varchar(150)" json:"first_name" validate:"max=150"`
	Email     string    `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
