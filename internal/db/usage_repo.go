package db

import (
	"context"
	"time"

	"copyforge/internal/types"
)

// UsageRepo provides access to the append-only usage ledger. Entries are
// written exactly once per successfully completed metered action and are
// never updated or deleted; all reads are time-windowed aggregations.
type UsageRepo struct {
	db DBTX
}

// NewUsageRepo creates a UsageRepo backed by the given connection.
func NewUsageRepo(db DBTX) *UsageRepo {
	return &UsageRepo{db: db}
}

// Append inserts one consumption record. Callers invoke this strictly after
// the metered action has succeeded.
func (r *UsageRepo) Append(ctx context.Context, entry types.UsageEntry) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO usage_entries (id, user_id, resource_kind, size_bytes, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.UserID, entry.Kind, entry.SizeBytes, entry.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append usage entry", err)
	}
	return nil
}

// CountSince counts entries of one kind for a user created at or after the
// given instant. The meter passes the first instant of the current calendar
// month, so an entry at 23:59:59 on the last day of the prior month is
// excluded and one at 00:00:00 on day 1 is included.
func (r *UsageRepo) CountSince(ctx context.Context, userID string, kind types.ResourceKind, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM usage_entries
		 WHERE user_id = $1
		   AND resource_kind = $2
		   AND created_at >= $3`,
		userID, kind, since,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count usage entries", err)
	}
	return count, nil
}

// SumSizeSince aggregates the recorded sizes of entries in the window.
// Sizes are the raw text length of the stored content, a documented
// approximation of true storage bytes (encoding and attachments ignored).
func (r *UsageRepo) SumSizeSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(size_bytes), 0)
		 FROM usage_entries
		 WHERE user_id = $1
		   AND created_at >= $2`,
		userID, since,
	).Scan(&total)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to sum usage sizes", err)
	}
	return total, nil
}
