package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"copyforge/internal/billing"
	"copyforge/internal/core"
	"copyforge/internal/external"
	"copyforge/internal/types"
)

// DocumentsHandler authorizes and meters document creation, then delegates
// storage to the document service.
type DocumentsHandler struct {
	auth    Authorizer
	creator external.DocumentCreator
	usage   UsageAppender
	plans   billing.PlanRegistry
	clock   types.Clock
	logger  *slog.Logger
}

// NewDocumentsHandler creates the handler.
func NewDocumentsHandler(auth Authorizer, creator external.DocumentCreator, usage UsageAppender, plans billing.PlanRegistry, clock types.Clock, logger *slog.Logger) *DocumentsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &DocumentsHandler{auth: auth, creator: creator, usage: usage, plans: plans, clock: clock, logger: logger}
}

// RegisterRoutes mounts the document endpoint.
func (h *DocumentsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/documents", h.Create)
}

// documentRequest is the request body for POST /v1/documents.
type documentRequest struct {
	Title   string       `json:"title"`
	Content string       `json:"content"`
	Format  types.Format `json:"format"`
}

// documentResponse is the success payload.
type documentResponse struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Format    types.Format     `json:"format"`
	SizeBytes int64            `json:"size_bytes"`
	Usage     types.QuotaCheck `json:"usage"`
}

// Create handles POST /v1/documents. The entitlement check covers the
// monthly document quota; the export format is validated against the plan's
// allow-list. The recorded size is the raw text length of the content, a
// documented approximation of true storage bytes.
func (h *DocumentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := types.GetUserID(ctx)
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthUserMissing, "authenticated user required", nil))
		return
	}

	var req documentRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "title is required", nil))
		return
	}
	if req.Format == "" {
		req.Format = types.FormatTXT
	}

	decision, err := h.auth.Authorize(ctx, userID, types.ResourceDocumentCreate, "")
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !decision.Allowed {
		core.Error(w, r, denialError(decision, "document creation"))
		return
	}

	limits := h.plans.GetLimits(decision.Plan)
	if !limits.AllowsFormat(req.Format) {
		core.Error(w, r, types.NewAppErrorWithDetails(
			types.ErrCodeFormatNotAllowed,
			"your plan does not allow this export format",
			nil,
			map[string]any{
				"format":          req.Format,
				"user_plan":       decision.Plan,
				"allowed_formats": limits.AllowedExportFormats,
			},
		))
		return
	}

	record, err := h.creator.Create(ctx, external.DocumentCreateRequest{
		UserID:  userID,
		Title:   req.Title,
		Content: req.Content,
		Format:  req.Format,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	sizeBytes := int64(len(req.Content))
	if err := h.usage.Append(ctx, types.UsageEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      types.ResourceDocumentCreate,
		SizeBytes: sizeBytes,
		CreatedAt: h.clock.Now(),
	}); err != nil {
		h.logger.ErrorContext(ctx, "failed to record document usage",
			"user_id", userID,
			"error", err,
		)
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: documentResponse{
		ID:        record.ID,
		Title:     req.Title,
		Format:    req.Format,
		SizeBytes: sizeBytes,
		Usage:     consumeOne(decision.Quota),
	}})
}
