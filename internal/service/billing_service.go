package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v78"

	"github.com/snapdock/snapdock-api/internal/constants"
	"github.com/snapdock/snapdock-api/internal/models"
	"github.com/snapdock/snapdock-api/internal/repository"
)

// BillingService reconciles Stripe subscription events onto tenant
// tiers. Every event is recorded first for at-most-once processing;
// replays and out-of-order retries are absorbed by the dedup table.
type BillingService struct {
	repos  *repository.Repositories
	logger *slog.Logger
}

// NewBillingService creates a new billing service.
func NewBillingService(repos *repository.Repositories, logger *slog.Logger) *BillingService {
	return &BillingService{
		repos:  repos,
		logger: logger,
	}
}

// ProcessEvent handles one verified Stripe event. Duplicate provider
// event ids are acknowledged without reprocessing.
func (s *BillingService) ProcessEvent(ctx context.Context, event stripe.Event) error {
	inserted, err := s.repos.WebhookEvent.Insert(ctx, &models.WebhookEvent{
		ID:              uuid.NewString(),
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		Payload:         string(event.Data.Raw),
		CreatedAt:       time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	if !inserted {
		s.logger.Info("duplicate billing event ignored", "event_id", event.ID, "type", event.Type)
		return nil
	}

	handleErr := s.handleEvent(ctx, event)

	errMsg := ""
	if handleErr != nil {
		errMsg = handleErr.Error()
	}
	if err := s.repos.WebhookEvent.MarkProcessed(ctx, event.ID, errMsg); err != nil {
		s.logger.Error("failed to mark event processed", "event_id", event.ID, "error", err)
	}
	return handleErr
}

func (s *BillingService) handleEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.updated":
		return s.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(ctx, event)
	case "invoice.paid":
		return s.handleInvoicePaid(ctx, event)
	case "invoice.payment_failed":
		return s.handleInvoiceFailed(ctx, event)
	default:
		s.logger.Debug("unhandled billing event type", "type", event.Type)
		return nil
	}
}

// handleCheckoutCompleted activates a freshly purchased subscription.
// The checkout session carries tenant_id and tier in its metadata.
func (s *BillingService) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}

	tenantID := session.Metadata["tenant_id"]
	if tenantID == "" {
		s.logger.Warn("checkout session missing tenant_id", "session_id", session.ID)
		return nil
	}
	tier := parseTier(session.Metadata["tier"])

	subID := ""
	if session.Subscription != nil {
		subID = session.Subscription.ID
	}
	custID := ""
	if session.Customer != nil {
		custID = session.Customer.ID
	}

	if subID != "" {
		now := time.Now()
		sub := &models.Subscription{
			ID:             uuid.NewString(),
			TenantID:       tenantID,
			ProviderSubID:  subID,
			ProviderCustID: custID,
			Tier:           tier,
			Status:         models.SubscriptionActive,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repos.Subscription.Upsert(ctx, sub); err != nil {
			return fmt.Errorf("failed to upsert subscription: %w", err)
		}
	}

	if err := s.applyTier(ctx, tenantID, tier); err != nil {
		return err
	}

	s.logger.Info("checkout completed",
		"tenant_id", tenantID,
		"tier", tier,
		"subscription_id", subID,
	)
	return nil
}

// handleSubscriptionUpdated keeps the local subscription and tenant
// tier in sync with plan changes and payment status transitions.
func (s *BillingService) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	tenantID, err := s.resolveTenant(ctx, &sub)
	if err != nil {
		return err
	}
	if tenantID == "" {
		s.logger.Warn("subscription update without tenant", "subscription_id", sub.ID)
		return nil
	}

	tier := parseTier(sub.Metadata["tier"])
	status := mapSubscriptionStatus(sub.Status)

	custID := ""
	if sub.Customer != nil {
		custID = sub.Customer.ID
	}

	now := time.Now()
	record := &models.Subscription{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		ProviderSubID:  sub.ID,
		ProviderCustID: custID,
		Tier:           tier,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repos.Subscription.Upsert(ctx, record); err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}

	// Paying states carry the purchased tier; a canceled subscription
	// drops the tenant to FREE. past_due keeps the current tier while
	// the provider retries payment.
	switch status {
	case models.SubscriptionActive, models.SubscriptionTrialing:
		if err := s.applyTier(ctx, tenantID, tier); err != nil {
			return err
		}
	case models.SubscriptionCanceled:
		if err := s.applyTier(ctx, tenantID, models.TierFree); err != nil {
			return err
		}
	}

	s.logger.Info("subscription updated",
		"tenant_id", tenantID,
		"subscription_id", sub.ID,
		"status", status,
		"tier", tier,
	)
	return nil
}

// handleSubscriptionDeleted downgrades the tenant back to FREE.
func (s *BillingService) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	tenantID, err := s.resolveTenant(ctx, &sub)
	if err != nil {
		return err
	}
	if tenantID == "" {
		s.logger.Warn("subscription delete without tenant", "subscription_id", sub.ID)
		return nil
	}

	if err := s.repos.Subscription.UpdateStatus(ctx, sub.ID, models.SubscriptionCanceled); err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}
	if err := s.applyTier(ctx, tenantID, models.TierFree); err != nil {
		return err
	}

	s.logger.Info("subscription deleted",
		"tenant_id", tenantID,
		"subscription_id", sub.ID,
	)
	return nil
}

// handleInvoicePaid re-syncs the subscription from the local record.
// Invoices can arrive before or after the subscription events they
// settle, so a paid invoice restores active status and re-applies the
// recorded tier, starting a fresh credit period for the new cycle.
func (s *BillingService) handleInvoicePaid(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	subID := invoiceSubscriptionID(&invoice)
	if subID == "" {
		s.logger.Debug("invoice without subscription ignored", "invoice_id", invoice.ID)
		return nil
	}
	record, err := s.repos.Subscription.GetByProviderSubID(ctx, subID)
	if err != nil {
		return fmt.Errorf("failed to look up subscription: %w", err)
	}
	if record == nil {
		s.logger.Warn("invoice for unknown subscription", "invoice_id", invoice.ID, "subscription_id", subID)
		return nil
	}

	if err := s.repos.Subscription.UpdateStatus(ctx, subID, models.SubscriptionActive); err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}
	if err := s.applyTier(ctx, record.TenantID, record.Tier); err != nil {
		return err
	}

	s.logger.Info("invoice paid",
		"tenant_id", record.TenantID,
		"subscription_id", subID,
		"tier", record.Tier,
	)
	return nil
}

// handleInvoiceFailed marks the subscription past_due. The tenant
// keeps its tier while the provider retries payment; a later
// subscription event settles the outcome either way.
func (s *BillingService) handleInvoiceFailed(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	subID := invoiceSubscriptionID(&invoice)
	if subID == "" {
		s.logger.Debug("invoice without subscription ignored", "invoice_id", invoice.ID)
		return nil
	}

	if err := s.repos.Subscription.UpdateStatus(ctx, subID, models.SubscriptionPastDue); err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}

	s.logger.Warn("invoice payment failed",
		"invoice_id", invoice.ID,
		"subscription_id", subID,
	)
	return nil
}

func invoiceSubscriptionID(invoice *stripe.Invoice) string {
	if invoice.Subscription == nil {
		return ""
	}
	return invoice.Subscription.ID
}

// resolveTenant finds the tenant for a provider subscription: the
// event metadata first, then the local subscription table.
func (s *BillingService) resolveTenant(ctx context.Context, sub *stripe.Subscription) (string, error) {
	if id := sub.Metadata["tenant_id"]; id != "" {
		return id, nil
	}
	record, err := s.repos.Subscription.GetByProviderSubID(ctx, sub.ID)
	if err != nil {
		return "", fmt.Errorf("failed to look up subscription: %w", err)
	}
	if record == nil {
		return "", nil
	}
	return record.TenantID, nil
}

// applyTier sets the tenant tier and its matching monthly budget.
// Changing tier starts a fresh credit period.
func (s *BillingService) applyTier(ctx context.Context, tenantID string, tier models.Tier) error {
	limits := constants.LimitsForTier(string(tier))
	if err := s.repos.Tenant.SetTier(ctx, tenantID, tier, limits.MonthlyCredits, time.Now()); err != nil {
		return fmt.Errorf("failed to set tenant tier: %w", err)
	}
	return nil
}

// parseTier normalizes provider metadata to a known tier, defaulting
// to FREE for anything unrecognized.
func parseTier(raw string) models.Tier {
	switch models.Tier(raw) {
	case models.TierPro, models.TierBusiness, models.TierEnterprise:
		return models.Tier(raw)
	default:
		return models.TierFree
	}
}

func mapSubscriptionStatus(status stripe.SubscriptionStatus) models.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive:
		return models.SubscriptionActive
	case stripe.SubscriptionStatusTrialing:
		return models.SubscriptionTrialing
	case stripe.SubscriptionStatusPastDue:
		return models.SubscriptionPastDue
	default:
		return models.SubscriptionCanceled
	}
}
