package handlers

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"copyforge/internal/billing"
	"copyforge/internal/core"
	"copyforge/internal/external"
	"copyforge/internal/types"
)

// Authorizer is the entitlement decision surface metered handlers depend
// on. Implemented by billing.Entitlements.
type Authorizer interface {
	Authorize(ctx context.Context, userID string, kind types.ResourceKind, feature string) (types.Decision, error)
}

// UsageAppender records one consumption entry after a metered action
// succeeds. Implemented by db.UsageRepo.
type UsageAppender interface {
	Append(ctx context.Context, entry types.UsageEntry) error
}

// GenerationsHandler fronts the AI generation provider: authorize, call,
// then meter.
type GenerationsHandler struct {
	auth      Authorizer
	generator external.Generator
	usage     UsageAppender
	clock     types.Clock
	logger    *slog.Logger
}

// NewGenerationsHandler creates the handler.
func NewGenerationsHandler(auth Authorizer, generator external.Generator, usage UsageAppender, clock types.Clock, logger *slog.Logger) *GenerationsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &GenerationsHandler{auth: auth, generator: generator, usage: usage, clock: clock, logger: logger}
}

// RegisterRoutes mounts the generation endpoint.
func (h *GenerationsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/generations", h.Create)
}

// generationRequest is the request body for POST /v1/generations.
type generationRequest struct {
	Prompt      string `json:"prompt"`
	ContentType string `json:"content_type,omitempty"`
	Tone        string `json:"tone,omitempty"`
	MaxWords    int    `json:"max_words,omitempty"`
	// BrandVoice opts into the plan-gated brand voice feature.
	BrandVoice bool `json:"brand_voice,omitempty"`
}

// generationResponse is the success payload: the content plus the quota
// snapshot after this call consumed one unit.
type generationResponse struct {
	Content    string           `json:"content"`
	Model      string           `json:"model,omitempty"`
	TokensUsed int64            `json:"tokens_used,omitempty"`
	Usage      types.QuotaCheck `json:"usage"`
}

// Create handles POST /v1/generations.
//
// Order is strict: entitlement check, then the expensive provider call,
// then the ledger append. A provider failure means nothing was consumed
// and nothing is recorded. The append runs after success; if it fails the
// user got content without being charged, which is logged and accepted
// over double-charging.
func (h *GenerationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := types.GetUserID(ctx)
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthUserMissing, "authenticated user required", nil))
		return
	}

	var req generationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "prompt is required", nil))
		return
	}

	feature := ""
	if req.BrandVoice {
		feature = billing.FeatureBrandVoice
	}

	decision, err := h.auth.Authorize(ctx, userID, types.ResourceGeneration, feature)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !decision.Allowed {
		core.Error(w, r, denialError(decision, "AI generation"))
		return
	}

	result, err := h.generator.Generate(ctx, external.GenerationRequest{
		Prompt:      req.Prompt,
		ContentType: req.ContentType,
		Tone:        req.Tone,
		MaxWords:    req.MaxWords,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.usage.Append(ctx, types.UsageEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      types.ResourceGeneration,
		CreatedAt: h.clock.Now(),
	}); err != nil {
		h.logger.ErrorContext(ctx, "failed to record generation usage",
			"user_id", userID,
			"error", err,
		)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: generationResponse{
		Content:    result.Content,
		Model:      result.Model,
		TokensUsed: result.TokensUsed,
		Usage:      consumeOne(decision.Quota),
	}})
}

// consumeOne adjusts a pre-action quota snapshot to reflect the unit this
// request consumed. Unlimited snapshots pass through untouched.
func consumeOne(q types.QuotaCheck) types.QuotaCheck {
	if q.Limit.IsUnlimited() {
		return q
	}
	q.Current++
	if q.Remaining > 0 {
		q.Remaining--
	}
	if limit := int64(q.Limit); limit > 0 {
		// Rounded, not truncated, so the post-action snapshot agrees with
		// what the next quota check will report.
		pct := int(math.Round(100 * float64(q.Current) / float64(limit)))
		if pct > 100 {
			pct = 100
		}
		q.Percentage = pct
	}
	q.Allowed = q.Current < int64(q.Limit)
	return q
}

// denialError converts a denied decision into the client-facing AppError.
func denialError(decision types.Decision, what string) *types.AppError {
	switch decision.Reason {
	case types.ReasonFeatureNotEntitled:
		return types.NewAppErrorWithDetails(
			types.ErrCodeFeatureNotEntitled,
			"your plan does not include this feature",
			nil,
			map[string]any{
				"user_plan":      decision.Plan,
				"required_plans": decision.RequiredPlans,
			},
		)
	default:
		return types.NewAppErrorWithDetails(
			types.ErrCodeQuotaExceeded,
			"monthly limit reached for "+what,
			nil,
			map[string]any{
				"current": decision.Quota.Current,
				"limit":   decision.Quota.Limit,
				"plan":    decision.Plan,
			},
		)
	}
}
