package external

import (
	"context"

	"copyforge/internal/types"
)

// WebhookVerifier checks the authenticity of an inbound webhook payload
// against its signature header. Verification failures must reject the
// request before any state is read or written.
type WebhookVerifier interface {
	Verify(payload []byte, sigHeader string) error
}

// CheckoutParams describes a new checkout session for a plan upgrade.
type CheckoutParams struct {
	UserID     string
	Plan       types.Plan
	SuccessURL string
	CancelURL  string
}

// Session is a hosted page the client is redirected to, either a checkout
// for a new subscription or the billing portal for managing an existing one.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// PaymentService is the outbound surface of the payment provider. Inbound
// lifecycle events arrive separately via the webhook endpoint.
type PaymentService interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*Session, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*Session, error)
}

// GenerationRequest is the payload sent to the AI generation provider.
type GenerationRequest struct {
	Prompt      string `json:"prompt"`
	ContentType string `json:"content_type,omitempty"`
	Tone        string `json:"tone,omitempty"`
	MaxWords    int    `json:"max_words,omitempty"`
}

// GenerationResult is the provider's response. The engine treats content as
// opaque text; it meters the call, it does not interpret the output.
type GenerationResult struct {
	Content    string `json:"content"`
	Model      string `json:"model,omitempty"`
	TokensUsed int64  `json:"tokens_used,omitempty"`
}

// Generator is the AI content generation provider.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
}

// DocumentCreateRequest is the payload sent to the document service.
type DocumentCreateRequest struct {
	UserID  string       `json:"user_id"`
	Title   string       `json:"title"`
	Content string       `json:"content"`
	Format  types.Format `json:"format"`
}

// DocumentRecord is the document service's acknowledgment of a created
// document. The engine stores none of it; it only meters the creation.
type DocumentRecord struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

// DocumentCreator is the document service. Storage lives there; this engine
// authorizes and meters.
type DocumentCreator interface {
	Create(ctx context.Context, req DocumentCreateRequest) (*DocumentRecord, error)
}
