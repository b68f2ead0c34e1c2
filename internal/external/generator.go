package external

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"copyforge/internal/config"
	"copyforge/internal/types"
)

// GeneratorClient calls the external AI generation provider. Generation is
// slow relative to the rest of the request path, so the HTTP client timeout
// is configured separately from the payment client.
type GeneratorClient struct {
	*BaseClient
	baseURL string
	apiKey  types.SecretString
	logger  *slog.Logger
}

// NewGeneratorClient creates the generation client from configuration.
func NewGeneratorClient(cfg config.GeneratorConfig, logger *slog.Logger) *GeneratorClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeneratorClient{
		BaseClient: NewBaseClient(
			&http.Client{Timeout: cfg.Timeout},
			"generator",
			// Generation calls are expensive; retry once, not twice.
			RetryPolicy{MaxRetries: 1, MinWait: DefaultRetryPolicy().MinWait, MaxWait: DefaultRetryPolicy().MaxWait},
			"copyforge/1.0",
		),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger,
	}
}

// Generate submits a prompt and returns the produced content. Provider
// errors map to upstream_generation so the handler can report a 502 without
// charging the user's quota.
func (c *GeneratorClient) Generate(ctx context.Context, genReq GenerationRequest) (*GenerationResult, error) {
	payload, err := json.Marshal(genReq)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode generation request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build generation request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := c.apiKey.Unmask(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.Do(req)
	if err != nil {
		if appErr, ok := err.(*types.AppError); ok && appErr.Code == types.ErrCodeUpstreamRateLimited {
			return nil, appErr
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamGeneration, "generation provider unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.ErrorContext(ctx, "generation provider rejected request",
			"status", resp.StatusCode,
			"body", string(body),
		)
		return nil, types.NewAppError(types.ErrCodeUpstreamGeneration, "generation provider rejected the request", nil)
	}

	var result GenerationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamGeneration, "failed to decode generation response", err)
	}
	return &result, nil
}
