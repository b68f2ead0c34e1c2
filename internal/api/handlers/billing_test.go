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

	"copyforge/internal/billing"
	"copyforge/internal/external"
	"copyforge/internal/types"
)

type mockPayments struct {
	mock.Mock
}

func (m *mockPayments) CreateCheckoutSession(ctx context.Context, params external.CheckoutParams) (*external.Session, error) {
	args := m.Called(ctx, params)
	if s := args.Get(0); s != nil {
		return s.(*external.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPayments) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*external.Session, error) {
	args := m.Called(ctx, customerID, returnURL)
	if s := args.Get(0); s != nil {
		return s.(*external.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSubReader struct {
	mock.Mock
}

func (m *mockSubReader) GetCurrentByUserID(ctx context.Context, userID string) (*types.Subscription, error) {
	args := m.Called(ctx, userID)
	if s := args.Get(0); s != nil {
		return s.(*types.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func newBillingTest(payments *mockPayments, subs *mockSubReader) *BillingHandler {
	return NewBillingHandler(payments, subs, billing.NewStaticPlanRegistry(), "https://app.copyforge.io/", nil)
}

func billingRequest(h *BillingHandler, method, path, userID, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req = req.WithContext(types.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	switch {
	case method == http.MethodPost && strings.HasSuffix(path, "/checkout"):
		h.CreateCheckout(rec, req)
	case method == http.MethodPost && strings.HasSuffix(path, "/portal"):
		h.CreatePortal(rec, req)
	case strings.HasSuffix(path, "/subscription"):
		h.GetSubscription(rec, req)
	default:
		h.ListPlans(rec, req)
	}
	return rec
}

func TestBilling_CreateCheckout_Success(t *testing.T) {
	payments := new(mockPayments)
	h := newBillingTest(payments, new(mockSubReader))

	var gotParams external.CheckoutParams
	payments.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { gotParams = args.Get(1).(external.CheckoutParams) }).
		Return(&external.Session{ID: "cs_123", URL: "https://checkout.stripe.com/cs_123"}, nil)

	rec := billingRequest(h, http.MethodPost, "/v1/billing/checkout", "user_1", `{"plan": "pro"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "user_1", gotParams.UserID)
	assert.Equal(t, types.PlanPro, gotParams.Plan)
	assert.Equal(t, "https://app.copyforge.io/billing/success", gotParams.SuccessURL)
	assert.Equal(t, "https://app.copyforge.io/billing", gotParams.CancelURL)

	var envelope struct {
		Data sessionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "cs_123", envelope.Data.SessionID)
}

func TestBilling_CreateCheckout_CustomURLsKept(t *testing.T) {
	payments := new(mockPayments)
	h := newBillingTest(payments, new(mockSubReader))

	var gotParams external.CheckoutParams
	payments.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { gotParams = args.Get(1).(external.CheckoutParams) }).
		Return(&external.Session{ID: "cs_123"}, nil)

	body := `{"plan": "agency", "success_url": "https://example.com/ok", "cancel_url": "https://example.com/no"}`
	rec := billingRequest(h, http.MethodPost, "/v1/billing/checkout", "user_1", body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://example.com/ok", gotParams.SuccessURL)
	assert.Equal(t, "https://example.com/no", gotParams.CancelURL)
}

func TestBilling_CreateCheckout_FreePlan_Rejected(t *testing.T) {
	payments := new(mockPayments)
	h := newBillingTest(payments, new(mockSubReader))

	rec := billingRequest(h, http.MethodPost, "/v1/billing/checkout", "user_1", `{"plan": "free"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payments.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
}

func TestBilling_CreateCheckout_UnknownPlan_Rejected(t *testing.T) {
	h := newBillingTest(new(mockPayments), new(mockSubReader))

	rec := billingRequest(h, http.MethodPost, "/v1/billing/checkout", "user_1", `{"plan": "platinum"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBilling_CreatePortal_Success(t *testing.T) {
	payments := new(mockPayments)
	subs := new(mockSubReader)
	h := newBillingTest(payments, subs)

	subs.On("GetCurrentByUserID", mock.Anything, "user_1").
		Return(&types.Subscription{StripeCustomerID: "cus_123"}, nil)
	payments.On("CreatePortalSession", mock.Anything, "cus_123", "https://app.copyforge.io/billing").
		Return(&external.Session{ID: "bps_1", URL: "https://billing.stripe.com/bps_1"}, nil)

	rec := billingRequest(h, http.MethodPost, "/v1/billing/portal", "user_1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	payments.AssertExpectations(t)
}

func TestBilling_CreatePortal_NoSubscription(t *testing.T) {
	payments := new(mockPayments)
	subs := new(mockSubReader)
	h := newBillingTest(payments, subs)

	subs.On("GetCurrentByUserID", mock.Anything, "user_1").
		Return(nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "no subscription on record", nil))

	rec := billingRequest(h, http.MethodPost, "/v1/billing/portal", "user_1", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	payments.AssertNotCalled(t, "CreatePortalSession", mock.Anything, mock.Anything, mock.Anything)
}

func TestBilling_GetSubscription(t *testing.T) {
	subs := new(mockSubReader)
	h := newBillingTest(new(mockPayments), subs)

	subs.On("GetCurrentByUserID", mock.Anything, "user_1").
		Return(&types.Subscription{ID: "sub_row_1", Plan: types.PlanPro, Status: types.SubStatusActive}, nil)

	rec := billingRequest(h, http.MethodGet, "/v1/billing/subscription", "user_1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data types.Subscription `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, types.PlanPro, envelope.Data.Plan)
}

func TestBilling_ListPlans_UnlimitedRendered(t *testing.T) {
	h := newBillingTest(new(mockPayments), new(mockSubReader))

	rec := billingRequest(h, http.MethodGet, "/v1/billing/plans", "user_1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `"unlimited"`)
	assert.NotContains(t, body, `-1`)

	var envelope struct {
		Data []planEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 4)
	assert.Equal(t, types.PlanFree, envelope.Data[0].Plan)
	assert.Equal(t, types.LimitValue(types.Unlimited), envelope.Data[3].AIGenerationsPerMonth)
}

func TestBilling_MissingUser_Unauthorized(t *testing.T) {
	h := newBillingTest(new(mockPayments), new(mockSubReader))

	rec := billingRequest(h, http.MethodPost, "/v1/billing/checkout", "", `{"plan": "pro"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
