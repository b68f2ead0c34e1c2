package billing

import (
	"context"
	"log/slog"
	"math"
	"time"

	"copyforge/internal/types"
)

// PlanSource resolves a user's current plan. Implemented by db.UserRepo.
type PlanSource interface {
	GetPlan(ctx context.Context, userID string) (types.Plan, error)
}

// UsageLedger is the ledger read surface the meter depends on.
// Implemented by db.UsageRepo.
type UsageLedger interface {
	CountSince(ctx context.Context, userID string, kind types.ResourceKind, since time.Time) (int64, error)
}

// Meter evaluates current-period consumption against plan ceilings.
//
// Check never writes to the ledger. Callers append a usage entry themselves,
// and only after the metered action has actually succeeded: the quota check
// runs strictly before the external cost is incurred, the ledger write
// strictly after. Two concurrent requests can both observe current < limit
// and both proceed; overshoot bounded by in-flight concurrency is an
// accepted tradeoff, not a bug to fix with locking.
type Meter struct {
	plans    PlanSource
	ledger   UsageLedger
	registry PlanRegistry
	clock    types.Clock
	logger   *slog.Logger
}

// NewMeter creates a usage meter. The clock is injected so calendar-window
// boundaries are deterministic under test.
func NewMeter(plans PlanSource, ledger UsageLedger, registry PlanRegistry, clock types.Clock, logger *slog.Logger) *Meter {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Meter{plans: plans, ledger: ledger, registry: registry, clock: clock, logger: logger}
}

// Check resolves the user's plan, looks up the ceiling for the resource, and
// evaluates usage inside the current calendar month.
//
// The window resets at the first instant of each month in server time; it is
// not a rolling 30-day window.
func (m *Meter) Check(ctx context.Context, userID string, kind types.ResourceKind) (types.QuotaCheck, error) {
	plan, err := m.plans.GetPlan(ctx, userID)
	if err != nil {
		return types.QuotaCheck{}, err
	}
	return m.CheckForPlan(ctx, userID, plan, kind)
}

// CheckForPlan is Check with the plan already resolved, used when the caller
// has the plan in hand and wants to avoid a second lookup.
func (m *Meter) CheckForPlan(ctx context.Context, userID string, plan types.Plan, kind types.ResourceKind) (types.QuotaCheck, error) {
	limit := m.registry.GetLimits(plan).LimitFor(kind)

	// Unlimited short-circuits before any comparison or division touches
	// the sentinel.
	if limit == types.Unlimited {
		return types.QuotaCheck{
			Allowed:    true,
			Current:    0,
			Limit:      types.Unlimited,
			Remaining:  types.Unlimited,
			Percentage: 0,
		}, nil
	}

	current, err := m.ledger.CountSince(ctx, userID, kind, types.StartOfMonth(m.clock.Now()))
	if err != nil {
		return types.QuotaCheck{}, err
	}

	return evaluate(current, limit), nil
}

// evaluate computes the quota verdict for a finite limit.
func evaluate(current, limit int64) types.QuotaCheck {
	remaining := limit - current
	if remaining < 0 {
		remaining = 0
	}

	var percentage int
	if limit == 0 {
		// Zero ceiling means the resource is fully consumed by definition.
		percentage = 100
	} else {
		percentage = int(math.Round(100 * float64(current) / float64(limit)))
		if percentage > 100 {
			percentage = 100
		}
		if percentage < 0 {
			percentage = 0
		}
	}

	return types.QuotaCheck{
		Allowed:    current < limit,
		Current:    current,
		Limit:      types.LimitValue(limit),
		Remaining:  types.LimitValue(remaining),
		Percentage: percentage,
	}
}
