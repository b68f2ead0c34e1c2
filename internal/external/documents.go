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

// DocumentClient calls the document service that owns content storage.
type DocumentClient struct {
	*BaseClient
	baseURL string
	apiKey  types.SecretString
	logger  *slog.Logger
}

// NewDocumentClient creates the document service client from configuration.
func NewDocumentClient(cfg config.DocumentsConfig, logger *slog.Logger) *DocumentClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentClient{
		BaseClient: NewBaseClient(
			&http.Client{Timeout: cfg.Timeout},
			"documents",
			DefaultRetryPolicy(),
			"copyforge/1.0",
		),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger,
	}
}

// Create stores a new document and returns its record.
func (c *DocumentClient) Create(ctx context.Context, docReq DocumentCreateRequest) (*DocumentRecord, error) {
	payload, err := json.Marshal(docReq)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode document request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/documents", bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build document request", err)
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
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "document service unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.ErrorContext(ctx, "document service rejected request",
			"status", resp.StatusCode,
			"body", string(body),
		)
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "document service rejected the request", nil)
	}

	var record DocumentRecord
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "failed to decode document service response", err)
	}
	return &record, nil
}
