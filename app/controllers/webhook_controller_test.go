package controllers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpellerin42/subsync/app/models"
)

const testWebhookSecret = "whsec_test_secret"

type stubStore struct {
	createErr error
	duplicate bool

	createdEvents []*models.WebhookEvent
	processed     []struct {
		id  uint
		msg string
	}
}

func (s *stubStore) CreateEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	if s.createErr != nil {
		return false, nil, s.createErr
	}
	stored := *event
	stored.ID = 42
	s.createdEvents = append(s.createdEvents, &stored)
	return !s.duplicate, &stored, nil
}

func (s *stubStore) MarkEventProcessed(id uint, processingError string) error {
	s.processed = append(s.processed, struct {
		id  uint
		msg string
	}{id, processingError})
	return nil
}

type stubDispatcher struct {
	err error

	calls []string
}

func (d *stubDispatcher) Dispatch(_ context.Context, eventType string, payload []byte) (bool, error) {
	d.calls = append(d.calls, eventType)
	return true, d.err
}

func newTestApp(store *stubStore, dispatcher *stubDispatcher) *fiber.App {
	wc := NewWebhookController(store, dispatcher)
	wc.claimOnce = func(string) (bool, error) { return true, nil }

	app := fiber.New()
	app.Post("/webhooks/stripe", wc.HandleStripeWebhook)
	return app
}

// signBody builds a Stripe-Signature header over the payload the way the
// provider does: HMAC-SHA256 of "<timestamp>.<body>".
func signBody(body []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, body)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventBody(id, eventType, objectJSON string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"type": %q,
		"api_version": "2024-06-20",
		"data": {"object": %s}
	}`, id, eventType, objectJSON))
}

func postWebhook(t *testing.T, app *fiber.App, body []byte, signature string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, payload
}

func TestWebhookWithoutSecretIsNotFound(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")
	store := &stubStore{}
	dispatcher := &stubDispatcher{}
	app := newTestApp(store, dispatcher)

	status, _ := postWebhook(t, app, []byte(`{}`), "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Empty(t, dispatcher.calls)
}

func TestWebhookBadSignatureIsRejected(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", testWebhookSecret)
	store := &stubStore{}
	dispatcher := &stubDispatcher{}
	app := newTestApp(store, dispatcher)

	body := eventBody("evt_1", "invoice.paid", `{"customer":"cus_123"}`)
	status, _ := postWebhook(t, app, body, signBody(body, "whsec_wrong"))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Empty(t, store.createdEvents)
	assert.Empty(t, dispatcher.calls)
}

func TestWebhookValidEventIsDispatched(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", testWebhookSecret)
	store := &stubStore{}
	dispatcher := &stubDispatcher{}
	app := newTestApp(store, dispatcher)

	body := eventBody("evt_1", "invoice.paid", `{"customer":"cus_123"}`)
	status, respBody := postWebhook(t, app, body, signBody(body, testWebhookSecret))

	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(respBody), `"handled":true`)
	require.Len(t, dispatcher.calls, 1)
	assert.Equal(t, "invoice.paid", dispatcher.calls[0])

	require.Len(t, store.createdEvents, 1)
	assert.Equal(t, "evt_1", store.createdEvents[0].EventID)
	assert.True(t, store.createdEvents[0].SignatureValid)
	require.Len(t, store.processed, 1)
	assert.Equal(t, uint(42), store.processed[0].id)
	assert.Empty(t, store.processed[0].msg)
}

func TestWebhookHandlerErrorStillAcked(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", testWebhookSecret)
	store := &stubStore{}
	dispatcher := &stubDispatcher{err: errors.New("lookup: customer cus_123: record not found")}
	app := newTestApp(store, dispatcher)

	body := eventBody("evt_2", "customer.subscription.updated", `{"customer":"cus_123","status":"active"}`)
	status, respBody := postWebhook(t, app, body, signBody(body, testWebhookSecret))

	assert.Equal(t, fiber.StatusOK, status, "the provider must never see an error for a handler failure")
	assert.Contains(t, string(respBody), `"handled":false`)
	require.Len(t, store.processed, 1)
	assert.Contains(t, store.processed[0].msg, "record not found")
}

func TestWebhookDuplicateInStoreIsNotRedispatched(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", testWebhookSecret)
	store := &stubStore{duplicate: true}
	dispatcher := &stubDispatcher{}
	app := newTestApp(store, dispatcher)

	body := eventBody("evt_3", "invoice.paid", `{"customer":"cus_123"}`)
	status, respBody := postWebhook(t, app, body, signBody(body, testWebhookSecret))

	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(respBody), `"duplicate":true`)
	assert.Empty(t, dispatcher.calls)
}

func TestWebhookDuplicateInCacheSkipsStore(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", testWebhookSecret)
	store := &stubStore{}
	dispatcher := &stubDispatcher{}
	wc := NewWebhookController(store, dispatcher)
	wc.claimOnce = func(string) (bool, error) { return false, nil }

	app := fiber.New()
	app.Post("/webhooks/stripe", wc.HandleStripeWebhook)

	body := eventBody("evt_4", "invoice.paid", `{"customer":"cus_123"}`)
	status, respBody := postWebhook(t, app, body, signBody(body, testWebhookSecret))

	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(respBody), `"duplicate":true`)
	assert.Empty(t, store.createdEvents)
	assert.Empty(t, dispatcher.calls)
}

func TestWebhookStoreFailureFailsOpen(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", testWebhookSecret)
	store := &stubStore{createErr: errors.New("connection refused")}
	dispatcher := &stubDispatcher{}
	app := newTestApp(store, dispatcher)

	body := eventBody("evt_5", "invoice.paid", `{"customer":"cus_123"}`)
	status, _ := postWebhook(t, app, body, signBody(body, testWebhookSecret))

	assert.Equal(t, fiber.StatusOK, status)
	require.Len(t, dispatcher.calls, 1, "a dedup store outage must not block processing")
}
