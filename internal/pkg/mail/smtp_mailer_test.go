package mail

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, m *SMTPMailer, name string, data map[string]interface{}) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, m.engine.Render(&buf, name, data))
	return buf.String()
}

func TestMailTemplatesRender(t *testing.T) {
	mailer, err := NewSMTPMailer("../../../views/mails")
	require.NoError(t, err)

	out := render(t, mailer, "subscription-started", map[string]interface{}{
		"firstName":   "Jeanne",
		"trialEnd":    "2024-01-10 00:00",
		"daysOfTrial": 14,
	})
	assert.Contains(t, out, "Jeanne")
	assert.Contains(t, out, "2024-01-10 00:00")

	out = render(t, mailer, "admin-new-subscription", map[string]interface{}{
		"eventName":     "customer.subscription.created",
		"customerId":    uint(7),
		"customerEmail": "jeanne@example.com",
		"trialEnd":      "2024-01-10 00:00",
		"daysOfTrial":   14,
		"action":        "Created a new customer_subscriptions row.",
	})
	assert.Contains(t, out, "jeanne@example.com")

	out = render(t, mailer, "trial-end-soon", map[string]interface{}{
		"firstName":      "Jeanne",
		"daysOfTrial":    14,
		"period":         "mensuel",
		"engagement":     "sans engagement",
		"pricePerPeriod": "29 € HT par mois",
	})
	assert.Contains(t, out, "mensuel")
	assert.Contains(t, out, "29 € HT par mois")

	out = render(t, mailer, "payment-required", map[string]interface{}{
		"firstName": "Jeanne",
	})
	assert.Contains(t, out, "Jeanne")

	out = render(t, mailer, "subscription-deleted", map[string]interface{}{
		"firstName": "Jeanne",
		"endDate":   "2024-06-01 00:00",
	})
	assert.Contains(t, out, "2024-06-01 00:00")
}

func TestAdminWarningInvoiceLineIsOptional(t *testing.T) {
	mailer, err := NewSMTPMailer("../../../views/mails")
	require.NoError(t, err)

	with := render(t, mailer, "admin-warning", map[string]interface{}{
		"eventName":     "invoice.paid",
		"customerEmail": "jeanne@example.com",
		"action":        "Check this customer.",
		"invoiceId":     "in_1",
	})
	assert.Contains(t, with, "in_1")

	without := render(t, mailer, "admin-warning", map[string]interface{}{
		"eventName":     "customer.subscription.updated",
		"customerEmail": "jeanne@example.com",
		"action":        "Status changed.",
		"invoiceId":     "",
	})
	assert.NotContains(t, without, "Invoice")
}

func TestNewSMTPMailerMissingDir(t *testing.T) {
	_, err := NewSMTPMailer("does-not-exist")
	assert.Error(t, err)
}
