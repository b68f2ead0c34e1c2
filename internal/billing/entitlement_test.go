package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copyforge/internal/types"
)

func newTestEntitlements(plan types.Plan, ledger *fakeLedger, policies map[types.ResourceKind]FailurePolicy) *Entitlements {
	plans := &fakePlanSource{plan: plan}
	meter := NewMeter(plans, ledger, NewStaticPlanRegistry(), fixedClock{now: time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)}, nil)
	return NewEntitlements(meter, NewFeatureGate(), plans, policies, nil)
}

func TestEntitlements_Authorize_Allowed(t *testing.T) {
	e := newTestEntitlements(types.PlanPro, &fakeLedger{count: 3}, nil)

	decision, err := e.Authorize(context.Background(), "user_1", types.ResourceGeneration, "")
	require.NoError(t, err)

	assert.True(t, decision.Allowed)
	assert.Equal(t, types.PlanPro, decision.Plan)
	assert.Empty(t, decision.Reason)
	assert.Equal(t, int64(3), decision.Quota.Current)
}

func TestEntitlements_Authorize_QuotaExceeded(t *testing.T) {
	e := newTestEntitlements(types.PlanFree, &fakeLedger{count: 10}, nil)

	decision, err := e.Authorize(context.Background(), "user_1", types.ResourceGeneration, "")
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Equal(t, types.ReasonQuotaExceeded, decision.Reason)
}

func TestEntitlements_Authorize_FeatureDenied(t *testing.T) {
	e := newTestEntitlements(types.PlanFree, &fakeLedger{count: 0}, nil)

	decision, err := e.Authorize(context.Background(), "user_1", types.ResourceGeneration, FeatureBrandVoice)
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Equal(t, types.ReasonFeatureNotEntitled, decision.Reason)
	assert.Equal(t, []types.Plan{types.PlanPro, types.PlanAgency, types.PlanEnterprise}, decision.RequiredPlans)
}

func TestEntitlements_Authorize_QuotaCheckedBeforeFeature(t *testing.T) {
	// A user who is both over quota and missing the feature gets the quota
	// reason: the check order is quota first.
	e := newTestEntitlements(types.PlanFree, &fakeLedger{count: 10}, nil)

	decision, err := e.Authorize(context.Background(), "user_1", types.ResourceGeneration, FeatureBrandVoice)
	require.NoError(t, err)

	assert.False(t, decision.Allowed)
	assert.Equal(t, types.ReasonQuotaExceeded, decision.Reason)
}

func TestEntitlements_Authorize_FailOpen(t *testing.T) {
	e := newTestEntitlements(types.PlanFree, &fakeLedger{err: errors.New("ledger unreachable")}, nil)

	decision, err := e.Authorize(context.Background(), "user_1", types.ResourceGeneration, "")
	require.NoError(t, err)

	assert.True(t, decision.Allowed)
	assert.True(t, decision.Quota.Limit.IsUnlimited())
}

func TestEntitlements_Authorize_FailClosed(t *testing.T) {
	policies := map[types.ResourceKind]FailurePolicy{
		types.ResourceGeneration: FailClosed,
	}
	e := newTestEntitlements(types.PlanFree, &fakeLedger{err: errors.New("ledger unreachable")}, policies)

	_, err := e.Authorize(context.Background(), "user_1", types.ResourceGeneration, "")
	require.Error(t, err)
}

func TestEntitlements_Authorize_PlanLookupError_FailOpen(t *testing.T) {
	plans := &fakePlanSource{err: errors.New("db down")}
	meter := NewMeter(plans, &fakeLedger{}, NewStaticPlanRegistry(), fixedClock{now: time.Now().UTC()}, nil)
	e := NewEntitlements(meter, NewFeatureGate(), plans, nil, nil)

	decision, err := e.Authorize(context.Background(), "user_1", types.ResourceGeneration, "")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestEntitlements_CheckFeature(t *testing.T) {
	e := newTestEntitlements(types.PlanAgency, &fakeLedger{}, nil)

	plan, hasAccess, required, err := e.CheckFeature(context.Background(), "user_1", FeatureAPIAccess)
	require.NoError(t, err)

	assert.Equal(t, types.PlanAgency, plan)
	assert.False(t, hasAccess)
	assert.Equal(t, []types.Plan{types.PlanEnterprise}, required)
}

func TestEntitlements_CheckUsage(t *testing.T) {
	e := newTestEntitlements(types.PlanFree, &fakeLedger{count: 5}, nil)

	quota, err := e.CheckUsage(context.Background(), "user_1", types.ResourceDocumentCreate)
	require.NoError(t, err)

	assert.True(t, quota.Allowed)
	assert.Equal(t, int64(5), quota.Current)
	assert.Equal(t, types.LimitValue(20), quota.Limit)
}
