package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Subscription status values as delivered by Stripe, plus the local
// terminal value "cancelled". Cancellation is a status, not a row removal.
const (
	SubscriptionStatusTrialing          = "trialing"
	SubscriptionStatusActive            = "active"
	SubscriptionStatusPastDue           = "past_due"
	SubscriptionStatusIncomplete        = "incomplete"
	SubscriptionStatusIncompleteExpired = "incomplete_expired"
	SubscriptionStatusUnpaid            = "unpaid"
	SubscriptionStatusCancelled         = "cancelled"
)

// TimestampMinuteLayout is the storage format for trial_ends_at / ends_at:
// an ISO instant truncated to minute precision, e.g. "2024-01-10 00:00".
const TimestampMinuteLayout = "2006-01-02 15:04"

// CustomerSubscription is the one mutable entity the webhook subsystem owns.
// At most one row per CustomerDetails is assumed.
type CustomerSubscription struct {
	ID                       uint      `gorm:"primaryKey" json:"id"`
	CustomerDetailsID        uint      `gorm:"column:customer_details;not null;index" json:"customer_details"`
	SubscriptionItemID       uint      `gorm:"column:subscription_items;not null" json:"subscription_items"`
	StripeSubscriptionStatus string    `gorm:"type:varchar(32);not null;default:'trialing';index" json:"stripe_subscription_status" validate:"oneof=trialing active past_due incomplete incomplete_expired unpaid cancelled"`
	TrialEndsAt              *string   `gorm:"type:varchar(16);default:null" json:"trial_ends_at,omitempty"`
	EndsAt                   *string   `gorm:"type:varchar(16);default:null" json:"ends_at,omitempty"`
	CreatedAt                time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *CustomerSubscription) Validate() error {
	v := validator.New()

	return v.Struct(s)
}

// IsDelinquent reports whether the subscription never reached a clean active
// lapse: on cancellation these statuses lose access immediately.
func (s *CustomerSubscription) IsDelinquent() bool {
	switch s.StripeSubscriptionStatus {
	case SubscriptionStatusTrialing,
		SubscriptionStatusPastDue,
		SubscriptionStatusIncomplete,
		SubscriptionStatusIncompleteExpired,
		SubscriptionStatusUnpaid:
		return true
	default:
		return false
	}
}
