package billing

import (
	"context"
	"log/slog"

	"copyforge/internal/types"
)

// FailurePolicy names what happens to a request when the usage check itself
// fails (ledger unreachable, plan lookup error). It is an explicit
// per-resource policy rather than an implicit difference between code paths.
type FailurePolicy string

const (
	// FailOpen allows the request to proceed when the check errors.
	// Availability over strict enforcement: a ledger outage must not take
	// down content generation.
	FailOpen FailurePolicy = "fail_open"
	// FailClosed blocks the request when the check errors.
	FailClosed FailurePolicy = "fail_closed"
)

// DefaultFailurePolicies is the production policy table for metered routes.
// Webhook processing is fail-closed by a separate mechanism (5xx responses
// force provider redelivery); it does not go through this table.
var DefaultFailurePolicies = map[types.ResourceKind]FailurePolicy{
	types.ResourceGeneration:     FailOpen,
	types.ResourceDocumentCreate: FailOpen,
}

// Entitlements is the per-request decision point for metered, gated
// capabilities. It combines the usage meter and the feature gate into a
// single verdict. Rate limiting runs earlier, in middleware, and knows
// nothing about plan or identity.
type Entitlements struct {
	meter    *Meter
	gate     *FeatureGate
	plans    PlanSource
	policies map[types.ResourceKind]FailurePolicy
	logger   *slog.Logger
}

// NewEntitlements creates the facade. A nil policies map falls back to
// DefaultFailurePolicies.
func NewEntitlements(meter *Meter, gate *FeatureGate, plans PlanSource, policies map[types.ResourceKind]FailurePolicy, logger *slog.Logger) *Entitlements {
	if policies == nil {
		policies = DefaultFailurePolicies
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Entitlements{meter: meter, gate: gate, plans: plans, policies: policies, logger: logger}
}

// Authorize decides whether the user may perform one unit of the given
// metered resource, optionally requiring a gated feature. Order: quota check
// first, then the feature gate. The returned Decision carries the quota
// snapshot and, on a feature denial, the plans that would grant access.
//
// On a usage-check error the resource's FailurePolicy applies: FailOpen
// returns an allowed decision (with the error logged and an empty quota
// snapshot), FailClosed propagates the error.
func (e *Entitlements) Authorize(ctx context.Context, userID string, kind types.ResourceKind, feature string) (types.Decision, error) {
	plan, err := e.plans.GetPlan(ctx, userID)
	if err != nil {
		return e.failDecision(ctx, userID, kind, err)
	}

	quota, err := e.meter.CheckForPlan(ctx, userID, plan, kind)
	if err != nil {
		return e.failDecision(ctx, userID, kind, err)
	}

	decision := types.Decision{
		Allowed: quota.Allowed,
		Plan:    plan,
		Quota:   quota,
	}
	if !quota.Allowed {
		decision.Reason = types.ReasonQuotaExceeded
		return decision, nil
	}

	if feature != "" && !e.gate.HasAccess(plan, feature) {
		decision.Allowed = false
		decision.Reason = types.ReasonFeatureNotEntitled
		decision.RequiredPlans = e.gate.RequiredPlans(feature)
		return decision, nil
	}

	return decision, nil
}

// failDecision applies the per-resource failure policy to a check error.
func (e *Entitlements) failDecision(ctx context.Context, userID string, kind types.ResourceKind, err error) (types.Decision, error) {
	if e.policies[kind] == FailOpen {
		e.logger.WarnContext(ctx, "usage check failed, failing open",
			"user_id", userID,
			"resource_kind", string(kind),
			"error", err,
		)
		return types.Decision{
			Allowed: true,
			Quota: types.QuotaCheck{
				Allowed:   true,
				Limit:     types.Unlimited,
				Remaining: types.Unlimited,
			},
		}, nil
	}
	return types.Decision{}, err
}

// CheckFeature answers the read-only feature probe used by the
// feature-check endpoint.
func (e *Entitlements) CheckFeature(ctx context.Context, userID, feature string) (types.Plan, bool, []types.Plan, error) {
	plan, err := e.plans.GetPlan(ctx, userID)
	if err != nil {
		return "", false, nil, err
	}
	return plan, e.gate.HasAccess(plan, feature), e.gate.RequiredPlans(feature), nil
}

// CheckUsage answers the read-only usage probe used by the usage endpoint.
func (e *Entitlements) CheckUsage(ctx context.Context, userID string, kind types.ResourceKind) (types.QuotaCheck, error) {
	return e.meter.Check(ctx, userID, kind)
}
