package subscription

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mpellerin42/subsync/app/models"
	"github.com/mpellerin42/subsync/internal/pkg/env"
	"github.com/mpellerin42/subsync/internal/pkg/mail"
	"gorm.io/gorm"
)

// Config carries the addresses the handlers send to.
type Config struct {
	OperatorEmail string
	WelcomeBcc    string
}

// ConfigFromEnv reads the mail addresses from the environment.
func ConfigFromEnv() Config {
	return Config{
		OperatorEmail: env.GetEnv("OPERATOR_EMAIL", "ops@localhost"),
		WelcomeBcc:    env.GetEnv("WELCOME_BCC", ""),
	}
}

// Service reconciles inbound billing events into subscription rows and the
// transactional emails each transition triggers.
type Service struct {
	repo   Repository
	mailer mail.Mailer
	cfg    Config
	now    func() time.Time
}

// NewService creates a reconciler from injected collaborators.
func NewService(repo Repository, mailer mail.Mailer, cfg Config) *Service {
	return &Service{repo: repo, mailer: mailer, cfg: cfg, now: time.Now}
}

// NewServiceFromDB creates a reconciler from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, mailer mail.Mailer) *Service {
	return NewService(NewRepository(db), mailer, ConfigFromEnv())
}

// HandleSubscriptionCreated reacts to customer.subscription.created, which
// with trial periods is the first event of a subscription's life. Creates
// the row when none exists (and only then sends the welcome mails);
// otherwise folds status, plan switch and trial refresh into one update.
func (s *Service) HandleSubscriptionCreated(ctx context.Context, ev *SubscriptionEvent) error {
	cust, err := s.repo.FindCustomerByStripeID(ev.Customer)
	if err != nil {
		return lookupFailed(fmt.Errorf("customer %s: %w", ev.Customer, err))
	}
	subs, err := s.repo.FindSubscriptionsByCustomer(cust.ID)
	if err != nil {
		return lookupFailed(fmt.Errorf("subscriptions for customer_details %d: %w", cust.ID, err))
	}
	item, err := s.repo.FindItemByPriceID(ev.PlanPriceID)
	if err != nil {
		return lookupFailed(fmt.Errorf("subscription item for price %s: %w", ev.PlanPriceID, err))
	}

	trialEnd := FormatMinuteUnix(ev.TrialEnd)

	if len(subs) > 0 {
		log.Printf("A row already exists for customer_details %d, updating status to %s", cust.ID, ev.Status)
		updates := map[string]interface{}{
			"stripe_subscription_status": ev.Status,
		}
		if subs[0].SubscriptionItemID != item.ID {
			updates["subscription_items"] = item.ID
		}
		if ev.Status == models.SubscriptionStatusTrialing {
			log.Printf("Trial end reset to %s", trialEnd)
			updates["trial_ends_at"] = trialEnd
			updates["ends_at"] = nil
		}
		if err := s.repo.UpdateSubscription(subs[0].ID, updates); err != nil {
			return persistFailed(err)
		}
		// Updates to an existing row never send mail.
		return nil
	}

	log.Printf("No subscription row for customer_details %d, creating one", cust.ID)
	sub := &models.CustomerSubscription{
		CustomerDetailsID:        cust.ID,
		SubscriptionItemID:       item.ID,
		StripeSubscriptionStatus: models.SubscriptionStatusTrialing,
		TrialEndsAt:              &trialEnd,
	}
	if err := sub.Validate(); err != nil {
		return persistFailed(err)
	}
	if err := s.repo.CreateSubscription(sub); err != nil {
		return persistFailed(err)
	}

	// The row is in; a mail failure from here on is reported but the write
	// stays (accepted inconsistency, recovered manually).
	if err := s.mailer.Send(ctx, mail.Message{
		To:      cust.User.Email,
		Bcc:     s.cfg.WelcomeBcc,
		Subject: "Bienvenue !",
		Template: mail.Template{
			Name: "subscription-started",
			Data: map[string]interface{}{
				"firstName":   cust.User.FirstName,
				"trialEnd":    trialEnd,
				"daysOfTrial": item.DaysOfTrial,
			},
		},
	}); err != nil {
		return notifyFailed(err)
	}

	if err := s.mailer.Send(ctx, mail.Message{
		To:      s.cfg.OperatorEmail,
		Subject: "New subscription created",
		Template: mail.Template{
			Name: "admin-new-subscription",
			Data: map[string]interface{}{
				"eventName":     EventSubscriptionCreated,
				"customerId":    cust.UserID,
				"customerEmail": cust.User.Email,
				"trialEnd":      trialEnd,
				"daysOfTrial":   item.DaysOfTrial,
				"action":        "Created a new customer_subscriptions row.",
			},
		},
	}); err != nil {
		return notifyFailed(err)
	}

	return nil
}

// HandleInvoicePaid confirms the subscriber once a trial has actually
// ended. The period end date is not in this payload; it arrives with
// customer.subscription.updated, so ends_at is never touched here.
func (s *Service) HandleInvoicePaid(ctx context.Context, ev *InvoiceEvent) error {
	cust, err := s.repo.FindCustomerByStripeID(ev.Customer)
	if err != nil {
		return lookupFailed(fmt.Errorf("customer %s: %w", ev.Customer, err))
	}
	subs, err := s.repo.FindSubscriptionsByCustomer(cust.ID)
	if err != nil {
		return lookupFailed(fmt.Errorf("subscriptions for customer_details %d: %w", cust.ID, err))
	}

	if len(subs) == 0 {
		// First invoice of the trial period: row creation belongs to the
		// customer.subscription.created handler.
		log.Printf("invoice.paid for %s: no subscription row yet", ev.Customer)
		return nil
	}

	sub := subs[0]
	if sub.StripeSubscriptionStatus == models.SubscriptionStatusTrialing {
		if trialStillRunning(sub.TrialEndsAt, time.Unix(ev.Created, 0)) {
			log.Printf("Trial still running for customer_details %d but an invoice was paid", cust.ID)
			if err := s.mailer.Send(ctx, mail.Message{
				To:      s.cfg.OperatorEmail,
				Subject: "Log Stripe: invoice paid during trial",
				Template: mail.Template{
					Name: "admin-warning",
					Data: map[string]interface{}{
						"eventName":     EventInvoicePaid,
						"customerEmail": cust.User.Email,
						"action":        "An invoice has been paid but the trial is not over. Check this customer.",
						"invoiceId":     ev.ID,
					},
				},
			}); err != nil {
				return notifyFailed(err)
			}
			return nil
		}
		log.Printf("Trial period is over for customer_details %d, the customer just paid", cust.ID)
	}

	if err := s.repo.UpdateSubscription(sub.ID, map[string]interface{}{
		"stripe_subscription_status": models.SubscriptionStatusActive,
	}); err != nil {
		return persistFailed(err)
	}
	return nil
}

// HandleInvoicePaymentActionRequired alerts customer and operator about a
// failed payment. Status changes arrive via the subscription events, so
// nothing is written here. A customer without a subscription row is a
// pending trial and is not alerted.
func (s *Service) HandleInvoicePaymentActionRequired(ctx context.Context, ev *InvoiceEvent) error {
	cust, err := s.repo.FindCustomerByStripeID(ev.Customer)
	if err != nil {
		return lookupFailed(fmt.Errorf("customer %s: %w", ev.Customer, err))
	}
	subs, err := s.repo.FindSubscriptionsByCustomer(cust.ID)
	if err != nil {
		return lookupFailed(fmt.Errorf("subscriptions for customer_details %d: %w", cust.ID, err))
	}
	if len(subs) == 0 {
		return nil
	}

	log.Printf("Payment action required for %s", cust.User.Email)
	if err := s.mailer.Send(ctx, mail.Message{
		To:      cust.User.Email,
		Subject: "Waiting for payment",
		Template: mail.Template{
			Name: "payment-required",
			Data: map[string]interface{}{
				"firstName": cust.User.FirstName,
			},
		},
	}); err != nil {
		return notifyFailed(err)
	}

	if err := s.mailer.Send(ctx, mail.Message{
		To:      s.cfg.OperatorEmail,
		Subject: "Log Stripe: payment_action_required",
		Template: mail.Template{
			Name: "admin-warning",
			Data: map[string]interface{}{
				"eventName":     EventInvoiceActionRequired,
				"customerEmail": cust.User.Email,
				"action":        "Problem with payment.",
				"invoiceId":     ev.ID,
			},
		},
	}); err != nil {
		return notifyFailed(err)
	}
	return nil
}

// HandleSubscriptionUpdated fires on any subscription change: plan switch,
// status transition, renewal. The period end is only authoritative when
// the status lands on active, so ends_at is written for that case alone.
func (s *Service) HandleSubscriptionUpdated(ctx context.Context, ev *SubscriptionEvent) error {
	cust, err := s.repo.FindCustomerByStripeID(ev.Customer)
	if err != nil {
		return lookupFailed(fmt.Errorf("customer %s: %w", ev.Customer, err))
	}
	subs, err := s.repo.FindSubscriptionsByCustomer(cust.ID)
	if err != nil {
		return lookupFailed(fmt.Errorf("subscriptions for customer_details %d: %w", cust.ID, err))
	}
	if len(subs) == 0 {
		return lookupFailed(fmt.Errorf("no subscription row for customer_details %d", cust.ID))
	}
	item, err := s.repo.FindItemByPriceID(ev.PlanPriceID)
	if err != nil {
		return lookupFailed(fmt.Errorf("subscription item for price %s: %w", ev.PlanPriceID, err))
	}

	log.Printf("Update subscription status to %s for customer_details %d", ev.Status, cust.ID)
	updates := map[string]interface{}{
		"stripe_subscription_status": ev.Status,
	}
	if subs[0].SubscriptionItemID != item.ID {
		updates["subscription_items"] = item.ID
	}
	if ev.Status == models.SubscriptionStatusActive {
		endsAt := FormatMinuteUnix(ev.CurrentPeriodEnd)
		log.Printf("End period set to %s", endsAt)
		updates["ends_at"] = endsAt
	}
	if err := s.repo.UpdateSubscription(subs[0].ID, updates); err != nil {
		return persistFailed(err)
	}

	message := fmt.Sprintf("Status changed for %s into %s.", cust.User.Email, ev.Status)
	if ev.CancelAtPeriodEnd {
		message = fmt.Sprintf("%s cancelled during trial.", cust.User.Email)
	}
	if err := s.mailer.Send(ctx, mail.Message{
		To:      s.cfg.OperatorEmail,
		Subject: "Log Stripe: subscription update",
		Template: mail.Template{
			Name: "admin-warning",
			Data: map[string]interface{}{
				"eventName":     EventSubscriptionUpdated,
				"customerEmail": cust.User.Email,
				"action":        message,
				"invoiceId":     "",
			},
		},
	}); err != nil {
		return notifyFailed(err)
	}
	return nil
}

// HandleSubscriptionTrialWillEnd sends the advance trial-end notice. No
// state is written; when the subscriber already opted out the reminder is
// skipped and only the operator hears about it.
func (s *Service) HandleSubscriptionTrialWillEnd(ctx context.Context, ev *SubscriptionEvent) error {
	cust, err := s.repo.FindCustomerByStripeID(ev.Customer)
	if err != nil {
		return lookupFailed(fmt.Errorf("customer %s: %w", ev.Customer, err))
	}
	subs, err := s.repo.FindSubscriptionsByCustomer(cust.ID)
	if err != nil {
		return lookupFailed(fmt.Errorf("subscriptions for customer_details %d: %w", cust.ID, err))
	}
	if len(subs) == 0 {
		return lookupFailed(fmt.Errorf("no subscription row for customer_details %d", cust.ID))
	}
	// The trial has not changed plan: resolve by the stored item, not the
	// event's price.
	item, err := s.repo.FindItemByID(subs[0].SubscriptionItemID)
	if err != nil {
		return lookupFailed(fmt.Errorf("subscription item %d: %w", subs[0].SubscriptionItemID, err))
	}

	terms := termsFor(item.BillingInterval)
	pricePerPeriod := formatPricePerPeriod(item.StripePrice, item.BillingInterval)

	if ev.CancelAtPeriodEnd {
		// They are leaving: no upsell mail, operator notice only.
		if err := s.mailer.Send(ctx, mail.Message{
			To:      s.cfg.OperatorEmail,
			Subject: "Log Stripe: trial will end - cancelled",
			Template: mail.Template{
				Name: "admin-warning",
				Data: map[string]interface{}{
					"eventName":     EventSubscriptionTrialWillEnd,
					"customerEmail": cust.User.Email,
					"action":        "Client cancelled before the end of the trial, no reminder sent.",
					"invoiceId":     "",
				},
			},
		}); err != nil {
			return notifyFailed(err)
		}
		return nil
	}

	log.Printf("Send trial-end reminder to %s", cust.User.Email)
	if err := s.mailer.Send(ctx, mail.Message{
		To:      cust.User.Email,
		Subject: "Votre période d'essai se termine dans 3j",
		Template: mail.Template{
			Name: "trial-end-soon",
			Data: map[string]interface{}{
				"firstName":      cust.User.FirstName,
				"daysOfTrial":    item.DaysOfTrial,
				"period":         terms.Period,
				"engagement":     terms.Engagement,
				"pricePerPeriod": pricePerPeriod,
			},
		},
	}); err != nil {
		return notifyFailed(err)
	}

	if err := s.mailer.Send(ctx, mail.Message{
		To:      s.cfg.OperatorEmail,
		Subject: "Log Stripe: trial will end",
		Template: mail.Template{
			Name: "admin-warning",
			Data: map[string]interface{}{
				"eventName":     EventSubscriptionTrialWillEnd,
				"customerEmail": cust.User.Email,
				"action":        "Vérifier que le mail de fin de période d'essai a bien été envoyé.",
				"invoiceId":     "",
			},
		},
	}); err != nil {
		return notifyFailed(err)
	}
	return nil
}

// HandleSubscriptionDeleted applies the terminal cancellation. The end date
// defaults to the stored one; a subscription that never reached a clean
// active lapse loses access immediately instead.
func (s *Service) HandleSubscriptionDeleted(ctx context.Context, ev *SubscriptionEvent) error {
	cust, err := s.repo.FindCustomerByStripeID(ev.Customer)
	if err != nil {
		return lookupFailed(fmt.Errorf("customer %s: %w", ev.Customer, err))
	}
	subs, err := s.repo.FindSubscriptionsByCustomer(cust.ID)
	if err != nil {
		return lookupFailed(fmt.Errorf("subscriptions for customer_details %d: %w", cust.ID, err))
	}
	if len(subs) == 0 {
		return lookupFailed(fmt.Errorf("no subscription row for customer_details %d", cust.ID))
	}

	sub := subs[0]
	endsAt := sub.EndsAt
	if sub.IsDelinquent() {
		v := FormatMinute(s.now())
		endsAt = &v
		log.Printf("End period set to NOW: %s", v)
	}

	log.Printf("Update subscription status to cancelled for customer_details %d", cust.ID)
	if err := s.repo.UpdateSubscription(sub.ID, map[string]interface{}{
		"stripe_subscription_status": models.SubscriptionStatusCancelled,
		"ends_at":                    endsAt,
	}); err != nil {
		return persistFailed(err)
	}

	endDate := ""
	if endsAt != nil {
		endDate = *endsAt
	}

	if err := s.mailer.Send(ctx, mail.Message{
		To:      cust.User.Email,
		Subject: "Votre abonnement est terminé",
		Template: mail.Template{
			Name: "subscription-deleted",
			Data: map[string]interface{}{
				"firstName": cust.User.FirstName,
				"endDate":   endDate,
			},
		},
	}); err != nil {
		return notifyFailed(err)
	}

	if err := s.mailer.Send(ctx, mail.Message{
		To:      s.cfg.OperatorEmail,
		Subject: "Log Stripe: subscription deleted",
		Template: mail.Template{
			Name: "admin-warning",
			Data: map[string]interface{}{
				"eventName":     EventSubscriptionDeleted,
				"customerEmail": cust.User.Email,
				"action":        fmt.Sprintf("Subscription will stop at: %s", endDate),
				"invoiceId":     "",
			},
		},
	}); err != nil {
		return notifyFailed(err)
	}
	return nil
}

// trialStillRunning compares the stored minute-precision trial end against
// the event instant. A missing or unparseable trial end counts as over.
func trialStillRunning(trialEndsAt *string, eventTime time.Time) bool {
	if trialEndsAt == nil {
		return false
	}
	end, err := time.ParseInLocation(models.TimestampMinuteLayout, *trialEndsAt, time.UTC)
	if err != nil {
		return false
	}
	return end.After(eventTime)
}
