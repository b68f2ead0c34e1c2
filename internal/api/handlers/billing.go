package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"copyforge/internal/billing"
	"copyforge/internal/core"
	"copyforge/internal/external"
	"copyforge/internal/types"
)

// SubscriptionReader is the read surface of the subscription repository
// needed by the billing handler.
type SubscriptionReader interface {
	GetCurrentByUserID(ctx context.Context, userID string) (*types.Subscription, error)
}

// BillingHandler serves the authenticated billing surface: checkout and
// portal session creation, the current subscription record, and the plan
// catalog.
type BillingHandler struct {
	payments   external.PaymentService
	subs       SubscriptionReader
	plans      billing.PlanRegistry
	appBaseURL string
	logger     *slog.Logger
}

// NewBillingHandler creates the handler. appBaseURL is the dashboard origin
// used for default redirect URLs.
func NewBillingHandler(payments external.PaymentService, subs SubscriptionReader, plans billing.PlanRegistry, appBaseURL string, logger *slog.Logger) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{
		payments:   payments,
		subs:       subs,
		plans:      plans,
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
		logger:     logger,
	}
}

// RegisterRoutes mounts the billing endpoints.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Route("/billing", func(r chi.Router) {
		r.Post("/checkout", h.CreateCheckout)
		r.Post("/portal", h.CreatePortal)
		r.Get("/subscription", h.GetSubscription)
		r.Get("/plans", h.ListPlans)
	})
}

// checkoutRequest is the request body for POST /v1/billing/checkout.
type checkoutRequest struct {
	Plan       types.Plan `json:"plan"`
	SuccessURL string     `json:"success_url,omitempty"`
	CancelURL  string     `json:"cancel_url,omitempty"`
}

// sessionResponse is the payload for session-creating endpoints.
type sessionResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// CreateCheckout handles POST /v1/billing/checkout. FREE is not purchasable;
// only paid plans map to a provider price.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := types.GetUserID(ctx)
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthUserMissing, "authenticated user required", nil))
		return
	}

	var req checkoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if !req.Plan.Valid() || req.Plan == types.PlanFree {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidPlan, "plan must be a paid tier", nil))
		return
	}

	successURL := req.SuccessURL
	if successURL == "" {
		successURL = h.appBaseURL + "/billing/success"
	}
	cancelURL := req.CancelURL
	if cancelURL == "" {
		cancelURL = h.appBaseURL + "/billing"
	}

	session, err := h.payments.CreateCheckoutSession(ctx, external.CheckoutParams{
		UserID:     userID,
		Plan:       req.Plan,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: sessionResponse{
		SessionID: session.ID,
		URL:       session.URL,
	}})
}

// portalRequest is the request body for POST /v1/billing/portal.
type portalRequest struct {
	ReturnURL string `json:"return_url,omitempty"`
}

// CreatePortal handles POST /v1/billing/portal. Requires an existing
// subscription; without one there is no provider customer to manage.
func (h *BillingHandler) CreatePortal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := types.GetUserID(ctx)
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthUserMissing, "authenticated user required", nil))
		return
	}

	var req portalRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	sub, err := h.subs.GetCurrentByUserID(ctx, userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = h.appBaseURL + "/billing"
	}

	session, err := h.payments.CreatePortalSession(ctx, sub.StripeCustomerID, returnURL)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: sessionResponse{
		SessionID: session.ID,
		URL:       session.URL,
	}})
}

// GetSubscription handles GET /v1/billing/subscription.
func (h *BillingHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := types.GetUserID(ctx)
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthUserMissing, "authenticated user required", nil))
		return
	}

	sub, err := h.subs.GetCurrentByUserID(ctx, userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: sub})
}

// planEntry is one row of the plan catalog. Numeric ceilings render through
// LimitValue so unlimited dimensions appear as "unlimited", not -1.
type planEntry struct {
	Plan                  types.Plan       `json:"plan"`
	AIGenerationsPerMonth types.LimitValue `json:"ai_generations_per_month"`
	DocumentsPerMonth     types.LimitValue `json:"documents_per_month"`
	StorageBytesLimit     types.LimitValue `json:"storage_bytes_limit"`
	AllowedExportFormats  []types.Format   `json:"allowed_export_formats"`
	CollaboratorLimit     types.LimitValue `json:"collaborator_limit"`
	BrandVoiceLimit       types.LimitValue `json:"brand_voice_limit"`
}

// ListPlans handles GET /v1/billing/plans, serving the server-side plan
// table as the reference copy for client display.
func (h *BillingHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	catalog := make([]planEntry, 0, len(types.AllPlans))
	for _, plan := range types.AllPlans {
		limits := h.plans.GetLimits(plan)
		catalog = append(catalog, planEntry{
			Plan:                  plan,
			AIGenerationsPerMonth: types.LimitValue(limits.AIGenerationsPerMonth),
			DocumentsPerMonth:     types.LimitValue(limits.DocumentsPerMonth),
			StorageBytesLimit:     types.LimitValue(limits.StorageBytesLimit),
			AllowedExportFormats:  limits.AllowedExportFormats,
			CollaboratorLimit:     types.LimitValue(limits.CollaboratorLimit),
			BrandVoiceLimit:       types.LimitValue(limits.BrandVoiceLimit),
		})
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: catalog})
}
