package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
)

// Recognized Stripe webhook event types.
const (
	EventSubscriptionCreated      = "customer.subscription.created"
	EventInvoicePaid              = "invoice.paid"
	EventInvoiceActionRequired    = "invoice.payment_action_required"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
	EventSubscriptionTrialWillEnd = "customer.subscription.trial_will_end"
	EventSubscriptionUpdated      = "customer.subscription.updated"
)

type handlerFunc func(s *Service, ctx context.Context, payload []byte) error

func subscriptionHandler(h func(*Service, context.Context, *SubscriptionEvent) error) handlerFunc {
	return func(s *Service, ctx context.Context, payload []byte) error {
		ev, err := ParseSubscriptionEvent(payload)
		if err != nil {
			return fmt.Errorf("parse subscription payload: %w", err)
		}
		return h(s, ctx, ev)
	}
}

func invoiceHandler(h func(*Service, context.Context, *InvoiceEvent) error) handlerFunc {
	return func(s *Service, ctx context.Context, payload []byte) error {
		ev, err := ParseInvoiceEvent(payload)
		if err != nil {
			return fmt.Errorf("parse invoice payload: %w", err)
		}
		return h(s, ctx, ev)
	}
}

var handlers = map[string]handlerFunc{
	EventSubscriptionCreated:      subscriptionHandler((*Service).HandleSubscriptionCreated),
	EventInvoicePaid:              invoiceHandler((*Service).HandleInvoicePaid),
	EventInvoiceActionRequired:    invoiceHandler((*Service).HandleInvoicePaymentActionRequired),
	EventSubscriptionDeleted:      subscriptionHandler((*Service).HandleSubscriptionDeleted),
	EventSubscriptionTrialWillEnd: subscriptionHandler((*Service).HandleSubscriptionTrialWillEnd),
	EventSubscriptionUpdated:      subscriptionHandler((*Service).HandleSubscriptionUpdated),
}

// Dispatch routes an event payload to its handler. handled reports whether
// the event type is recognized; unrecognized types are logged and ignored.
// The returned error is informational only: the transport acknowledgement
// must not depend on it.
func (s *Service) Dispatch(ctx context.Context, eventType string, payload []byte) (handled bool, err error) {
	h, ok := handlers[eventType]
	if !ok {
		log.Printf("Unhandled event type %s", eventType)
		return false, nil
	}

	err = h(s, ctx, payload)
	customer := customerFromPayload(payload)
	if err != nil {
		log.Printf("Event %s for customer %s failed: %v", eventType, customer, err)
	} else {
		log.Printf("Event %s for customer %s handled successfully", eventType, customer)
	}
	return true, err
}

func customerFromPayload(payload []byte) string {
	var p struct {
		Customer string `json:"customer"`
	}
	_ = json.Unmarshal(payload, &p)
	return p.Customer
}
