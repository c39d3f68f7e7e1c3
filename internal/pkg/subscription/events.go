package subscription

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/mpellerin42/subsync/app/models"
)

// SubscriptionEvent is the normalized payload of the
// customer.subscription.* webhook family.
type SubscriptionEvent struct {
	Customer          string
	Status            string
	PlanPriceID       string
	TrialEnd          int64
	CurrentPeriodEnd  int64
	CancelAtPeriodEnd bool
}

// InvoiceEvent is the normalized payload of the invoice.* webhook family.
type InvoiceEvent struct {
	ID       string
	Customer string
	Created  int64
}

func ParseSubscriptionEvent(payload []byte) (*SubscriptionEvent, error) {
	type rawPlan struct {
		ID string `json:"id"`
	}
	type rawSubscription struct {
		Customer          string  `json:"customer"`
		Status            string  `json:"status"`
		Plan              rawPlan `json:"plan"`
		TrialEnd          int64   `json:"trial_end"`
		CurrentPeriodEnd  int64   `json:"current_period_end"`
		CancelAtPeriodEnd bool    `json:"cancel_at_period_end"`
	}

	var raw rawSubscription
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.Customer) == "" {
		return nil, errors.New("subscription payload missing customer id")
	}

	return &SubscriptionEvent{
		Customer:          raw.Customer,
		Status:            raw.Status,
		PlanPriceID:       raw.Plan.ID,
		TrialEnd:          raw.TrialEnd,
		CurrentPeriodEnd:  raw.CurrentPeriodEnd,
		CancelAtPeriodEnd: raw.CancelAtPeriodEnd,
	}, nil
}

func ParseInvoiceEvent(payload []byte) (*InvoiceEvent, error) {
	type rawInvoice struct {
		ID       string `json:"id"`
		Customer string `json:"customer"`
		Created  int64  `json:"created"`
	}

	var raw rawInvoice
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.Customer) == "" {
		return nil, errors.New("invoice payload missing customer id")
	}

	return &InvoiceEvent{
		ID:       raw.ID,
		Customer: raw.Customer,
		Created:  raw.Created,
	}, nil
}

// FormatMinute truncates an instant to the minute-precision string format
// used for trial_ends_at and ends_at.
func FormatMinute(t time.Time) string {
	return t.UTC().Format(models.TimestampMinuteLayout)
}

// FormatMinuteUnix converts epoch seconds (Stripe's timestamp encoding) to
// the stored string format.
func FormatMinuteUnix(sec int64) string {
	return FormatMinute(time.Unix(sec, 0))
}
