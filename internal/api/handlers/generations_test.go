package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"copyforge/internal/external"
	"copyforge/internal/types"
)

// --- Mocks ---

type mockAuthorizer struct {
	mock.Mock
}

func (m *mockAuthorizer) Authorize(ctx context.Context, userID string, kind types.ResourceKind, feature string) (types.Decision, error) {
	args := m.Called(ctx, userID, kind, feature)
	return args.Get(0).(types.Decision), args.Error(1)
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, req external.GenerationRequest) (*external.GenerationResult, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*external.GenerationResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockUsage struct {
	mock.Mock
}

func (m *mockUsage) Append(ctx context.Context, entry types.UsageEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func allowedDecision(current, limit int64) types.Decision {
	return types.Decision{
		Allowed: true,
		Plan:    types.PlanFree,
		Quota: types.QuotaCheck{
			Allowed:   true,
			Current:   current,
			Limit:     types.LimitValue(limit),
			Remaining: types.LimitValue(limit - current),
		},
	}
}

func postGeneration(h *GenerationsHandler, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/generations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req = req.WithContext(types.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	return rec
}

// --- Tests ---

func TestGenerations_Create_Success(t *testing.T) {
	auth := new(mockAuthorizer)
	gen := new(mockGenerator)
	usage := new(mockUsage)
	h := NewGenerationsHandler(auth, gen, usage, nil, nil)

	auth.On("Authorize", mock.Anything, "user_1", types.ResourceGeneration, "").
		Return(allowedDecision(4, 10), nil)
	gen.On("Generate", mock.Anything, mock.Anything).
		Return(&external.GenerationResult{Content: "generated copy", Model: "gen-2"}, nil)

	var gotEntry types.UsageEntry
	usage.On("Append", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { gotEntry = args.Get(1).(types.UsageEntry) }).
		Return(nil)

	rec := postGeneration(h, "user_1", `{"prompt": "write a tagline"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "user_1", gotEntry.UserID)
	assert.Equal(t, types.ResourceGeneration, gotEntry.Kind)
	assert.NotEmpty(t, gotEntry.ID)

	var envelope struct {
		Data struct {
			Content string           `json:"content"`
			Usage   types.QuotaCheck `json:"usage"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "generated copy", envelope.Data.Content)
	// The snapshot reflects the unit this call consumed.
	assert.Equal(t, int64(5), envelope.Data.Usage.Current)
	assert.Equal(t, types.LimitValue(5), envelope.Data.Usage.Remaining)
}

func TestGenerations_Create_QuotaExceeded(t *testing.T) {
	auth := new(mockAuthorizer)
	gen := new(mockGenerator)
	usage := new(mockUsage)
	h := NewGenerationsHandler(auth, gen, usage, nil, nil)

	auth.On("Authorize", mock.Anything, "user_1", types.ResourceGeneration, "").
		Return(types.Decision{
			Allowed: false,
			Reason:  types.ReasonQuotaExceeded,
			Plan:    types.PlanFree,
			Quota:   types.QuotaCheck{Current: 10, Limit: 10, Percentage: 100},
		}, nil)

	rec := postGeneration(h, "user_1", `{"prompt": "write a tagline"}`)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	usage.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestGenerations_Create_FeatureDenied(t *testing.T) {
	auth := new(mockAuthorizer)
	h := NewGenerationsHandler(auth, new(mockGenerator), new(mockUsage), nil, nil)

	auth.On("Authorize", mock.Anything, "user_1", types.ResourceGeneration, "brand-voice").
		Return(types.Decision{
			Allowed:       false,
			Reason:        types.ReasonFeatureNotEntitled,
			Plan:          types.PlanFree,
			RequiredPlans: []types.Plan{types.PlanPro, types.PlanAgency, types.PlanEnterprise},
		}, nil)

	rec := postGeneration(h, "user_1", `{"prompt": "write a tagline", "brand_voice": true}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGenerations_Create_ProviderFailure_NothingRecorded(t *testing.T) {
	auth := new(mockAuthorizer)
	gen := new(mockGenerator)
	usage := new(mockUsage)
	h := NewGenerationsHandler(auth, gen, usage, nil, nil)

	auth.On("Authorize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(allowedDecision(0, 10), nil)
	gen.On("Generate", mock.Anything, mock.Anything).
		Return(nil, types.NewAppError(types.ErrCodeUpstreamGeneration, "generation provider unavailable", nil))

	rec := postGeneration(h, "user_1", `{"prompt": "write a tagline"}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	usage.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestGenerations_Create_AppendFailure_StillSucceeds(t *testing.T) {
	auth := new(mockAuthorizer)
	gen := new(mockGenerator)
	usage := new(mockUsage)
	h := NewGenerationsHandler(auth, gen, usage, nil, nil)

	auth.On("Authorize", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(allowedDecision(0, 10), nil)
	gen.On("Generate", mock.Anything, mock.Anything).
		Return(&external.GenerationResult{Content: "copy"}, nil)
	usage.On("Append", mock.Anything, mock.Anything).
		Return(types.NewAppError(types.ErrCodeInternalDB, "ledger write failed", nil))

	rec := postGeneration(h, "user_1", `{"prompt": "write a tagline"}`)

	// The user already received the content; a ledger write failure is
	// logged, not surfaced.
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGenerations_Create_EmptyPrompt_Rejected(t *testing.T) {
	auth := new(mockAuthorizer)
	h := NewGenerationsHandler(auth, new(mockGenerator), new(mockUsage), nil, nil)

	rec := postGeneration(h, "user_1", `{"prompt": "   "}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	auth.AssertNotCalled(t, "Authorize", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerations_Create_MissingUser_Unauthorized(t *testing.T) {
	h := NewGenerationsHandler(new(mockAuthorizer), new(mockGenerator), new(mockUsage), nil, nil)

	rec := postGeneration(h, "", `{"prompt": "write a tagline"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConsumeOne_Unlimited_Untouched(t *testing.T) {
	q := types.QuotaCheck{
		Allowed:   true,
		Limit:     types.Unlimited,
		Remaining: types.Unlimited,
	}
	got := consumeOne(q)
	assert.Equal(t, q, got)
}

func TestConsumeOne_FiniteLimit(t *testing.T) {
	q := types.QuotaCheck{
		Allowed:    true,
		Current:    9,
		Limit:      10,
		Remaining:  1,
		Percentage: 90,
	}
	got := consumeOne(q)

	assert.Equal(t, int64(10), got.Current)
	assert.Equal(t, types.LimitValue(0), got.Remaining)
	assert.Equal(t, 100, got.Percentage)
	assert.False(t, got.Allowed)
}

// TestConsumeOne_PercentageRounds verifies the post-action percentage rounds
// the same way a fresh quota check would, instead of truncating.
func TestConsumeOne_PercentageRounds(t *testing.T) {
	// 5 of 7 consumed: 5/7 = 71.4% truncates to 71 but rounds to 71;
	// 6/7 = 85.7% truncates to 85 but rounds to 86.
	q := types.QuotaCheck{
		Allowed:    true,
		Current:    5,
		Limit:      7,
		Remaining:  2,
		Percentage: 71,
	}
	got := consumeOne(q)

	assert.Equal(t, int64(6), got.Current)
	assert.Equal(t, types.LimitValue(1), got.Remaining)
	assert.Equal(t, 86, got.Percentage)
	assert.True(t, got.Allowed)
}
