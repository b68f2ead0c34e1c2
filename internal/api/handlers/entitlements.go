package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"copyforge/internal/core"
	"copyforge/internal/types"
)

// EntitlementReader is the read-only probe surface for the entitlement
// endpoints. Implemented by billing.Entitlements.
type EntitlementReader interface {
	CheckFeature(ctx context.Context, userID, feature string) (types.Plan, bool, []types.Plan, error)
	CheckUsage(ctx context.Context, userID string, kind types.ResourceKind) (types.QuotaCheck, error)
}

// EntitlementsHandler serves the read-only feature and usage probes the
// dashboard uses to render upgrade prompts and usage bars. Probes never
// consume quota.
type EntitlementsHandler struct {
	reader EntitlementReader
	logger *slog.Logger
}

// NewEntitlementsHandler creates the handler.
func NewEntitlementsHandler(reader EntitlementReader, logger *slog.Logger) *EntitlementsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntitlementsHandler{reader: reader, logger: logger}
}

// RegisterRoutes mounts the entitlement probe endpoints.
func (h *EntitlementsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/entitlements/features/{feature}", h.CheckFeature)
	r.Get("/entitlements/usage/{resource}", h.CheckUsage)
}

// featureCheckResponse is the payload of the feature probe.
type featureCheckResponse struct {
	Feature       string       `json:"feature"`
	HasAccess     bool         `json:"has_access"`
	UserPlan      types.Plan   `json:"user_plan"`
	RequiredPlans []types.Plan `json:"required_plans,omitempty"`
	NeedsUpgrade  bool         `json:"needs_upgrade"`
}

// CheckFeature handles GET /v1/entitlements/features/{feature}. Unknown
// feature names report access granted: an ungated feature is open to every
// plan.
func (h *EntitlementsHandler) CheckFeature(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := types.GetUserID(ctx)
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthUserMissing, "authenticated user required", nil))
		return
	}

	feature := chi.URLParam(r, "feature")
	plan, hasAccess, requiredPlans, err := h.reader.CheckFeature(ctx, userID, feature)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: featureCheckResponse{
		Feature:       feature,
		HasAccess:     hasAccess,
		UserPlan:      plan,
		RequiredPlans: requiredPlans,
		NeedsUpgrade:  !hasAccess,
	}})
}

// CheckUsage handles GET /v1/entitlements/usage/{resource}.
func (h *EntitlementsHandler) CheckUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := types.GetUserID(ctx)
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthUserMissing, "authenticated user required", nil))
		return
	}

	kind := types.ResourceKind(chi.URLParam(r, "resource"))
	if !kind.Valid() {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidKind, "unknown metered resource", nil))
		return
	}

	quota, err := h.reader.CheckUsage(ctx, userID, kind)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: quota})
}
