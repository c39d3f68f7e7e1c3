package models

import "time"

// CustomerDetails links a local user to their Stripe customer. Read-only
// from the webhook subsystem's perspective.
type CustomerDetails struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID" json:"user"`
	StripeID  string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"stripe_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
