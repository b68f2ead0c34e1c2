package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"copyforge/internal/types"
)

// UserRepo provides access to the minimal user projection this engine needs:
// the denormalized plan column. Users are created at signup (outside this
// engine) with plan FREE; the plan is mutated only by the webhook lifecycle
// store or explicit admin action.
type UserRepo struct {
	db DBTX
}

// NewUserRepo creates a UserRepo backed by the given connection.
func NewUserRepo(db DBTX) *UserRepo {
	return &UserRepo{db: db}
}

// GetPlan returns the user's current plan.
func (r *UserRepo) GetPlan(ctx context.Context, userID string) (types.Plan, error) {
	var plan types.Plan
	err := r.db.QueryRow(ctx,
		`SELECT plan FROM users WHERE id = $1`,
		userID,
	).Scan(&plan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to get user plan", err)
	}
	return plan, nil
}

// SetPlan updates the user's denormalized plan. Used by admin tooling; the
// webhook path updates the plan inside the lifecycle transaction instead.
func (r *UserRepo) SetPlan(ctx context.Context, userID string, plan types.Plan) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET plan = $1, updated_at = NOW() WHERE id = $2`,
		plan, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set user plan", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}
