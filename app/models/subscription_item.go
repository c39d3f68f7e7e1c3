package models

// Billing interval constants used across subscription-related models.
const (
	BillingIntervalMonth = "month"
	BillingIntervalYear  = "year"
)

// SubscriptionItem is a purchasable plan. Reference data, never written by
// the webhook subsystem.
type SubscriptionItem struct {
	ID              uint    `gorm:"primaryKey" json:"id"`
	Name            string  `gorm:"type:varchar(150)" json:"name"`
	StripePriceID   string  `gorm:"type:varchar(191);not null;uniqueIndex" json:"stripe_price_id"`
	StripePrice     float64 `gorm:"type:decimal(10,2);not null" json:"stripe_price"`
	BillingInterval string  `gorm:"type:varchar(16);not null;default:'month'" json:"billing_interval" validate:"oneof=month year"`
	DaysOfTrial     int     `gorm:"not null;default:0" json:"days_of_trial"`
}
