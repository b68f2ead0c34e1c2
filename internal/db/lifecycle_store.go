package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"copyforge/internal/types"
)

// LifecycleStore applies payment-provider lifecycle events to local state.
// It owns every write to the subscriptions table and keeps users.plan -- a
// denormalized cache of subscription state -- in sync within the same
// transaction wherever a transition changes the plan.
//
// Concurrency model: the provider may deliver events concurrently or out of
// order for the same subscription. There is no sequence-number or
// timestamp-based ordering guard; upserts are last-write-wins by arrival
// order. The provider event timestamp is recorded on the row (last_event_at)
// for forensics only.
type LifecycleStore struct {
	pool   TxBeginner
	db     DBTX
	logger *slog.Logger
}

// NewLifecycleStore creates a LifecycleStore. pool and db are normally the
// same *pgxpool.Pool; they are separate parameters so tests can substitute
// either surface.
func NewLifecycleStore(pool TxBeginner, db DBTX, logger *slog.Logger) *LifecycleStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleStore{pool: pool, db: db, logger: logger}
}

// ApplyCheckoutCompleted upserts the subscription keyed on the stable
// external customer id and sets the user's plan, in one transaction.
//
// The upsert key makes redelivery idempotent: the provider guarantees
// at-least-once delivery, and applying the same completion twice leaves
// exactly one row with the same final state.
func (s *LifecycleStore) ApplyCheckoutCompleted(ctx context.Context, c types.CheckoutCompletion) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO subscriptions
		   (id, user_id, plan, status, stripe_customer_id, stripe_subscription_id,
		    current_period_end, canceled_at, last_event_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, $8, NOW(), NOW())
		 ON CONFLICT (stripe_customer_id) DO UPDATE SET
		   user_id = EXCLUDED.user_id,
		   plan = EXCLUDED.plan,
		   status = EXCLUDED.status,
		   stripe_subscription_id = EXCLUDED.stripe_subscription_id,
		   current_period_end = EXCLUDED.current_period_end,
		   canceled_at = NULL,
		   last_event_at = EXCLUDED.last_event_at,
		   updated_at = NOW()`,
		uuid.NewString(),
		c.UserID,
		c.Plan,
		types.SubStatusActive,
		c.StripeCustomerID,
		c.StripeSubscriptionID,
		c.CurrentPeriodEnd,
		c.EventTimestamp,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert subscription", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET plan = $1, updated_at = NOW() WHERE id = $2`,
		c.Plan, c.UserID,
	); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to sync user plan", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit checkout completion", err)
	}
	return nil
}

// ApplyPatch performs a partial update of the subscription keyed by the
// external customer id. Only fields present in the patch are written; the
// patch enumerates presence explicitly instead of relying on zero-value
// guessing. User plan is not touched here -- status-only transitions
// (PAST_DUE, TRIALING) must not revoke access.
//
// An unknown customer id is logged and ignored: redelivered or late events
// for subscriptions this system never saw must not wedge the provider's
// retry queue.
func (s *LifecycleStore) ApplyPatch(ctx context.Context, customerID string, patch types.SubscriptionPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	set := []string{"updated_at = NOW()"}
	args := []any{}
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Plan != nil {
		add("plan", *patch.Plan)
	}
	if patch.CurrentPeriodEnd != nil {
		add("current_period_end", *patch.CurrentPeriodEnd)
	}
	if patch.CanceledAt != nil {
		add("canceled_at", *patch.CanceledAt)
	}
	if !patch.EventTimestamp.IsZero() {
		add("last_event_at", patch.EventTimestamp)
	}

	args = append(args, customerID)
	query := fmt.Sprintf(
		`UPDATE subscriptions SET %s WHERE stripe_customer_id = $%d`,
		strings.Join(set, ", "), len(args),
	)

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to patch subscription", err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.WarnContext(ctx, "subscription patch matched no row, ignoring",
			"stripe_customer_id", customerID,
		)
	}
	return nil
}

// ApplyDeleted marks the subscription canceled and unconditionally
// downgrades the user to FREE in the same transaction. Entitlement loss is
// immediate, independent of any remaining paid period -- an explicit design
// choice.
//
// An unknown customer id is a logged no-op for the same redelivery-safety
// reason as ApplyPatch.
func (s *LifecycleStore) ApplyDeleted(ctx context.Context, customerID string, canceledAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var userID string
	err = tx.QueryRow(ctx,
		`UPDATE subscriptions
		 SET status = $1, canceled_at = $2, last_event_at = $2, updated_at = NOW()
		 WHERE stripe_customer_id = $3
		 RETURNING user_id`,
		types.SubStatusCanceled, canceledAt, customerID,
	).Scan(&userID)
	if err != nil {
		if isNoRows(err) {
			s.logger.WarnContext(ctx, "deletion event for unknown customer, ignoring",
				"stripe_customer_id", customerID,
			)
			return nil
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to cancel subscription", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET plan = $1, updated_at = NOW() WHERE id = $2`,
		types.PlanFree, userID,
	); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to downgrade user plan", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit subscription deletion", err)
	}
	return nil
}

// ApplyPaymentFailed records dunning state: status PAST_DUE only. The user's
// plan is intentionally left unchanged -- a failed payment flags risk but
// does not immediately revoke access.
func (s *LifecycleStore) ApplyPaymentFailed(ctx context.Context, customerID string, failedAt time.Time) error {
	status := types.SubStatusPastDue
	return s.ApplyPatch(ctx, customerID, types.SubscriptionPatch{
		Status:         &status,
		EventTimestamp: failedAt,
	})
}
