package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"

	"copyforge/internal/config"
	"copyforge/internal/types"
)

const stripeAPIBase = "https://api.stripe.com/v1"

// StripeVerifier validates webhook signatures using the endpoint's signing
// secret. It wraps the provider SDK's constant-time HMAC check, including
// its timestamp tolerance against replay.
type StripeVerifier struct {
	secret types.SecretString
}

// NewStripeVerifier creates a verifier for the configured signing secret.
func NewStripeVerifier(secret types.SecretString) *StripeVerifier {
	return &StripeVerifier{secret: secret}
}

// Verify checks the Stripe-Signature header against the raw payload. A
// missing header and a bad signature are distinct error codes so the
// access logs can tell misconfiguration from tampering.
func (v *StripeVerifier) Verify(payload []byte, sigHeader string) error {
	if sigHeader == "" {
		return types.NewAppError(types.ErrCodeAuthSignatureMissing, "missing webhook signature header", nil)
	}
	if err := webhook.ValidatePayload(payload, sigHeader, v.secret.Unmask()); err != nil {
		return types.NewAppError(types.ErrCodeAuthSignatureInvalid, "webhook signature verification failed", err)
	}
	return nil
}

// StripeClient is the outbound payment provider client. It talks to the
// provider's form-encoded REST API through the resilient BaseClient rather
// than the SDK's bundled transport, so checkout and portal calls share the
// same breaker, retry, and error-mapping behavior as every other upstream.
type StripeClient struct {
	*BaseClient
	baseURL string
	cfg     config.BillingConfig
	logger  *slog.Logger
}

// StripeClientOption configures a StripeClient.
type StripeClientOption func(*StripeClient)

// WithStripeBaseURL overrides the API base URL; used by tests.
func WithStripeBaseURL(u string) StripeClientOption {
	return func(c *StripeClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// NewStripeClient creates the payment client.
func NewStripeClient(cfg config.BillingConfig, logger *slog.Logger, opts ...StripeClientOption) *StripeClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &StripeClient{
		BaseClient: NewBaseClient(
			&http.Client{Timeout: 30 * time.Second},
			"stripe",
			DefaultRetryPolicy(),
			"copyforge/1.0",
		),
		baseURL: stripeAPIBase,
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateCheckoutSession starts a hosted checkout for a paid plan. The user id
// rides along as client_reference_id and metadata so the completion event can
// be attributed without a customer lookup.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*Session, error) {
	priceID, ok := c.cfg.PlanToPrice()[params.Plan]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidPlan,
			fmt.Sprintf("plan %q has no checkout price", params.Plan), nil)
	}

	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", priceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("client_reference_id", params.UserID)
	form.Set("metadata[user_id]", params.UserID)
	form.Set("metadata[plan]", string(params.Plan))
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)

	return c.postForm(ctx, "/checkout/sessions", form)
}

// CreatePortalSession opens the provider's billing portal for an existing
// customer.
func (c *StripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*Session, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("return_url", returnURL)

	return c.postForm(ctx, "/billing_portal/sessions", form)
}

func (c *StripeClient) postForm(ctx context.Context, path string, form url.Values) (*Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build payment request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.cfg.StripeSecretKey.Unmask())

	resp, err := c.Do(req)
	if err != nil {
		var appErr *types.AppError
		if e, ok := err.(*types.AppError); ok {
			appErr = e
		}
		if appErr != nil && appErr.Code == types.ErrCodeUpstreamRateLimited {
			return nil, appErr
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamPayment, "payment provider unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.ErrorContext(ctx, "payment provider rejected request",
			"path", path,
			"status", resp.StatusCode,
			"body", string(body),
		)
		return nil, types.NewAppError(types.ErrCodeUpstreamPayment,
			fmt.Sprintf("payment provider returned %d", resp.StatusCode), nil)
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamPayment, "failed to decode payment provider response", err)
	}
	return &session, nil
}
