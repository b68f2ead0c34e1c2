// Package handlers contains the HTTP handler implementations for the
// CopyForge API.
//
// The webhook handler is NOT behind the identity middleware; it is called
// directly by the payment provider and authenticates by verifying the
// Stripe-Signature header.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"copyforge/internal/core"
	"copyforge/internal/external"
	"copyforge/internal/types"
)

// maxWebhookBodySize caps the webhook payload (64 KB). Provider events are
// small; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// Recognized provider event kinds. Everything else is acknowledged and
// ignored.
const (
	eventCheckoutCompleted   = "checkout.session.completed"
	eventSubscriptionUpdated = "customer.subscription.updated"
	eventSubscriptionDeleted = "customer.subscription.deleted"
	eventPaymentFailed       = "invoice.payment_failed"
)

// SubscriptionLifecycle is the webhook handler's write surface over local
// billing state. Implemented by db.LifecycleStore.
type SubscriptionLifecycle interface {
	ApplyCheckoutCompleted(ctx context.Context, c types.CheckoutCompletion) error
	ApplyPatch(ctx context.Context, customerID string, patch types.SubscriptionPatch) error
	ApplyDeleted(ctx context.Context, customerID string, canceledAt time.Time) error
	ApplyPaymentFailed(ctx context.Context, customerID string, failedAt time.Time) error
}

// StripeWebhookHandler processes asynchronous lifecycle events from the
// payment provider, the single entry point for all subscription state
// transitions.
type StripeWebhookHandler struct {
	verifier    external.WebhookVerifier
	lifecycle   SubscriptionLifecycle
	priceToPlan map[string]types.Plan
	logger      *slog.Logger
}

// NewStripeWebhookHandler creates the handler. priceToPlan maps configured
// provider price IDs to local plans.
func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	lifecycle SubscriptionLifecycle,
	priceToPlan map[string]types.Plan,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier:    verifier,
		lifecycle:   lifecycle,
		priceToPlan: priceToPlan,
		logger:      logger,
	}
}

// RegisterRoutes mounts the webhook endpoint. Separate from the
// authenticated billing routes because this one is public.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle processes one webhook delivery.
//
// Signature verification failures reject the request before any state is
// touched. Recognized events that fail internally return 5xx so the
// provider redelivers; silently dropping a lifecycle event would leave
// local state permanently stale. Unrecognized event kinds return 200 so
// the provider's retry queue is never wedged by events this engine does
// not care about.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"failed to read request body",
			err,
		))
		return
	}

	if err := h.verifier.Verify(payload, r.Header.Get("Stripe-Signature")); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
		core.Error(w, r, err)
		return
	}

	var event providerEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to parse webhook event", "error", err)
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidJSON,
			"invalid webhook event JSON",
			err,
		))
		return
	}

	h.logger.InfoContext(r.Context(), "processing webhook event",
		"event_id", event.ID,
		"event_type", event.Type,
	)

	handled, err := h.routeEvent(r.Context(), &event)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "webhook event processing failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	if !handled {
		h.logger.InfoContext(r.Context(), "ignoring unhandled webhook event type",
			"event_type", event.Type,
		)
	}

	w.WriteHeader(http.StatusOK)
}

// routeEvent dispatches by event kind. The bool reports whether the kind
// was recognized.
func (h *StripeWebhookHandler) routeEvent(ctx context.Context, event *providerEvent) (bool, error) {
	switch event.Type {
	case eventCheckoutCompleted:
		return true, h.handleCheckoutCompleted(ctx, event)
	case eventSubscriptionUpdated:
		return true, h.handleSubscriptionUpdated(ctx, event)
	case eventSubscriptionDeleted:
		return true, h.handleSubscriptionDeleted(ctx, event)
	case eventPaymentFailed:
		return true, h.handlePaymentFailed(ctx, event)
	default:
		return false, nil
	}
}

// handleCheckoutCompleted confirms a new subscription after the hosted
// checkout flow. Upserts by customer id and syncs the user's plan in one
// transaction; redelivery converges to the same row.
func (h *StripeWebhookHandler) handleCheckoutCompleted(ctx context.Context, event *providerEvent) error {
	var session checkoutSessionObj
	if err := event.decodeObject(&session); err != nil {
		return fmt.Errorf("checkout.session.completed: %w", err)
	}

	userID := session.ClientReferenceID
	if userID == "" {
		userID = session.Metadata["user_id"]
	}
	if userID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("checkout.session.completed event %s carries no user id", event.ID), nil)
	}
	if session.Customer == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("checkout.session.completed event %s carries no customer id", event.ID), nil)
	}

	plan := types.Plan(session.Metadata["plan"])
	if !plan.Valid() {
		plan = types.PlanFree
	}

	h.logger.InfoContext(ctx, "processing checkout completed",
		"event_id", event.ID,
		"user_id", userID,
		"plan", plan,
	)

	// The checkout session does not carry the billing period; record a
	// provisional one-month period that the customer.subscription.updated
	// event following checkout overwrites with the real value.
	return h.lifecycle.ApplyCheckoutCompleted(ctx, types.CheckoutCompletion{
		UserID:               userID,
		Plan:                 plan,
		StripeCustomerID:     session.Customer,
		StripeSubscriptionID: session.Subscription,
		CurrentPeriodEnd:     event.timestamp().AddDate(0, 1, 0),
		EventTimestamp:       event.timestamp(),
	})
}

// handleSubscriptionUpdated applies plan/status changes: upgrades,
// downgrades, trial transitions, cancel-at-period-end flips. Only fields
// present on the event are written, and user plan is left alone for
// status-only transitions.
func (h *StripeWebhookHandler) handleSubscriptionUpdated(ctx context.Context, event *providerEvent) error {
	var sub subscriptionObj
	if err := event.decodeObject(&sub); err != nil {
		return fmt.Errorf("customer.subscription.updated: %w", err)
	}
	if sub.Customer == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("customer.subscription.updated event %s carries no customer id", event.ID), nil)
	}

	patch := types.SubscriptionPatch{EventTimestamp: event.timestamp()}

	status := mapProviderStatus(sub.Status)
	patch.Status = &status

	if plan, ok := h.planFromItems(sub.Items); ok {
		patch.Plan = &plan
	}

	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		patch.CurrentPeriodEnd = &end
	}

	// canceled_at is written only when the subscription actually reached
	// CANCELED; a pending cancel_at_period_end flag alone must not set it.
	// The event time stands in when the payload omits the field, so a
	// canceled subscription always carries a cancellation instant.
	if status == types.SubStatusCanceled {
		at := event.timestamp()
		if sub.CanceledAt > 0 {
			at = time.Unix(sub.CanceledAt, 0).UTC()
		}
		patch.CanceledAt = &at
	}

	h.logger.InfoContext(ctx, "processing subscription updated",
		"event_id", event.ID,
		"stripe_customer_id", sub.Customer,
		"status", status,
	)

	return h.lifecycle.ApplyPatch(ctx, sub.Customer, patch)
}

// handleSubscriptionDeleted reverts the user to FREE immediately, whatever
// the remaining paid period.
func (h *StripeWebhookHandler) handleSubscriptionDeleted(ctx context.Context, event *providerEvent) error {
	var sub subscriptionObj
	if err := event.decodeObject(&sub); err != nil {
		return fmt.Errorf("customer.subscription.deleted: %w", err)
	}
	if sub.Customer == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("customer.subscription.deleted event %s carries no customer id", event.ID), nil)
	}

	canceledAt := event.timestamp()
	if sub.CanceledAt > 0 {
		canceledAt = time.Unix(sub.CanceledAt, 0).UTC()
	}

	h.logger.InfoContext(ctx, "processing subscription deleted",
		"event_id", event.ID,
		"stripe_customer_id", sub.Customer,
	)

	return h.lifecycle.ApplyDeleted(ctx, sub.Customer, canceledAt)
}

// handlePaymentFailed records dunning state. Status moves to PAST_DUE; the
// plan and entitlements stay until the provider gives up and deletes the
// subscription.
func (h *StripeWebhookHandler) handlePaymentFailed(ctx context.Context, event *providerEvent) error {
	var invoice invoiceObj
	if err := event.decodeObject(&invoice); err != nil {
		return fmt.Errorf("invoice.payment_failed: %w", err)
	}
	if invoice.Customer == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("invoice.payment_failed event %s carries no customer id", event.ID), nil)
	}

	h.logger.WarnContext(ctx, "processing payment failure",
		"event_id", event.ID,
		"stripe_customer_id", invoice.Customer,
	)

	return h.lifecycle.ApplyPaymentFailed(ctx, invoice.Customer, event.timestamp())
}

// planFromItems maps the first subscription item's price id to a plan.
func (h *StripeWebhookHandler) planFromItems(items subItems) (types.Plan, bool) {
	if len(items.Data) == 0 {
		return "", false
	}
	plan, ok := h.priceToPlan[items.Data[0].Price.ID]
	return plan, ok
}

// mapProviderStatus translates the provider's status vocabulary into the
// local enum at the boundary. Nothing downstream sees raw provider strings.
// Statuses outside the known vocabulary map to ACTIVE: a new benign provider
// status must never strip a paying customer's entitlement.
func mapProviderStatus(s string) types.SubscriptionStatus {
	switch s {
	case "past_due", "unpaid":
		return types.SubStatusPastDue
	case "canceled":
		return types.SubStatusCanceled
	case "incomplete", "incomplete_expired":
		return types.SubStatusIncomplete
	case "trialing":
		return types.SubStatusTrialing
	default:
		return types.SubStatusActive
	}
}

// ---------------------------------------------------------------------------
// Provider event parsing
// ---------------------------------------------------------------------------

// providerEvent is a minimal representation of a provider webhook event,
// tailored to the fields this engine routes on. The full SDK event type is
// deliberately not imported; these structs keep the handler decoupled and
// trivially testable.
type providerEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    json.RawMessage `json:"data"`
}

type eventData struct {
	Object json.RawMessage `json:"object"`
}

// decodeObject unwraps data.object into dst.
func (e *providerEvent) decodeObject(dst any) error {
	var data eventData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return fmt.Errorf("decoding event data: %w", err)
	}
	if err := json.Unmarshal(data.Object, dst); err != nil {
		return fmt.Errorf("decoding event object: %w", err)
	}
	return nil
}

// timestamp returns the provider event's created time.
func (e *providerEvent) timestamp() time.Time {
	return time.Unix(e.Created, 0).UTC()
}

// checkoutSessionObj holds the minimal fields of a completed checkout
// session.
type checkoutSessionObj struct {
	ClientReferenceID string            `json:"client_reference_id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	Metadata          map[string]string `json:"metadata"`
}

// subscriptionObj holds the minimal fields of a subscription event object.
type subscriptionObj struct {
	ID               string   `json:"id"`
	Customer         string   `json:"customer"`
	Status           string   `json:"status"`
	CurrentPeriodEnd int64    `json:"current_period_end"`
	CanceledAt       int64    `json:"canceled_at"`
	Items            subItems `json:"items"`
}

type subItems struct {
	Data []subItem `json:"data"`
}

type subItem struct {
	Price subPrice `json:"price"`
}

type subPrice struct {
	ID string `json:"id"`
}

// invoiceObj holds the minimal fields of an invoice event object.
type invoiceObj struct {
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}
