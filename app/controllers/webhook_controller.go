package controllers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/mpellerin42/subsync/app/models"
	"github.com/mpellerin42/subsync/internal/pkg/cache"
	"github.com/mpellerin42/subsync/internal/pkg/env"
)

// EventStore persists webhook events for idempotent processing. Satisfied
// by subscription.Repository.
type EventStore interface {
	CreateEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkEventProcessed(id uint, processingError string) error
}

// EventDispatcher routes a verified event to its handler. Satisfied by
// subscription.Service.
type EventDispatcher interface {
	Dispatch(ctx context.Context, eventType string, payload []byte) (bool, error)
}

// WebhookController handles the billing provider's webhook endpoint.
type WebhookController struct {
	store      EventStore
	dispatcher EventDispatcher
	claimOnce  func(eventID string) (bool, error)
}

func NewWebhookController(store EventStore, dispatcher EventDispatcher) *WebhookController {
	return &WebhookController{
		store:      store,
		dispatcher: dispatcher,
		claimOnce: func(eventID string) (bool, error) {
			return cache.ClaimOnce("webhook:stripe:"+eventID, 24*time.Hour)
		},
	}
}

func (wc *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")
	if secret == "" {
		// Without a secret the endpoint is dead: no parsing, no processing.
		return c.SendStatus(fiber.StatusNotFound)
	}

	rawBody := append([]byte(nil), c.Body()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))

	event, err := webhook.ConstructEventWithOptions(rawBody, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		log.Printf("Webhook signature verification failed: %v", err)
		return c.SendStatus(fiber.StatusBadRequest)
	}

	eventID := strings.TrimSpace(event.ID)
	if eventID == "" {
		sum := sha256.Sum256(rawBody)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	// Redis fast path. Errors fall through to the DB check: a cache outage
	// must not block processing.
	if first, err := wc.claimOnce(eventID); err == nil && !first {
		log.Printf("Duplicate event %s dropped by cache", eventID)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	created, stored, err := wc.store.CreateEventIfNotExists(&models.WebhookEvent{
		EventID:        eventID,
		EventType:      string(event.Type),
		PayloadJSON:    string(rawBody),
		SignatureValid: true,
	})
	if err != nil {
		// Fail open: losing dedup degrades to at-least-once delivery.
		log.Printf("Webhook event persist failed: %v", err)
	} else if !created {
		log.Printf("Duplicate event %s already recorded", eventID)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	handled, handleErr := wc.dispatcher.Dispatch(ctx, string(event.Type), event.Data.Raw)
	if stored != nil {
		msg := ""
		if handleErr != nil {
			msg = handleErr.Error()
		}
		if err := wc.store.MarkEventProcessed(stored.ID, msg); err != nil {
			log.Printf("Marking webhook event %d processed failed: %v", stored.ID, err)
		}
	}

	// The provider is always acked so it does not retry; handler failures
	// stay visible through logs and the stored processing_error.
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "handled": handled && handleErr == nil})
}
