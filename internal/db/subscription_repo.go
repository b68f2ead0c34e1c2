package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"copyforge/internal/types"
)

// subscriptionColumns is the canonical select list for subscription rows.
const subscriptionColumns = `id, user_id, plan, status, stripe_customer_id,
	stripe_subscription_id, current_period_end, canceled_at, created_at, updated_at`

// SubscriptionRepo provides read access to persisted subscription records.
// All writes go through LifecycleStore so that user plan sync happens in the
// same transaction.
type SubscriptionRepo struct {
	db DBTX
}

// NewSubscriptionRepo creates a SubscriptionRepo backed by the given
// connection.
func NewSubscriptionRepo(db DBTX) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

// GetCurrentByUserID returns the user's most recently updated subscription
// record, or a not-found error if the user has never subscribed.
func (r *SubscriptionRepo) GetCurrentByUserID(ctx context.Context, userID string) (*types.Subscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE user_id = $1
		 ORDER BY updated_at DESC
		 LIMIT 1`,
		userID,
	)
	return scanSubscription(row)
}

// GetByCustomerID returns the subscription keyed by the external customer
// identifier.
func (r *SubscriptionRepo) GetByCustomerID(ctx context.Context, customerID string) (*types.Subscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE stripe_customer_id = $1`,
		customerID,
	)
	return scanSubscription(row)
}

// scanSubscription maps one row into a Subscription, translating pgx.ErrNoRows
// into the domain not-found error.
func scanSubscription(row pgx.Row) (*types.Subscription, error) {
	var sub types.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.Plan,
		&sub.Status,
		&sub.StripeCustomerID,
		&sub.StripeSubscriptionID,
		&sub.CurrentPeriodEnd,
		&sub.CanceledAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan subscription", err)
	}
	return &sub, nil
}
