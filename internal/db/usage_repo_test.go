package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"copyforge/internal/types"
)

func TestUsageRepo_Append_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUsageRepo(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Append(ctx, types.UsageEntry{
		ID:        "entry_1",
		UserID:    "user_1",
		Kind:      types.ResourceGeneration,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestUsageRepo_Append_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUsageRepo(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("connection refused"))

	err := repo.Append(ctx, types.UsageEntry{ID: "entry_1", UserID: "user_1", Kind: types.ResourceGeneration})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestUsageRepo_CountSince_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUsageRepo(db)
	ctx := context.Background()

	since := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*int64) = 7
			return nil
		},
	}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"),
		[]any{"user_1", types.ResourceGeneration, since}).Return(row)

	count, err := repo.CountSince(ctx, "user_1", types.ResourceGeneration, since)
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	db.AssertExpectations(t)
}

func TestUsageRepo_CountSince_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUsageRepo(db)
	ctx := context.Background()

	row := &mockRow{scanErr: errors.New("timeout")}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	_, err := repo.CountSince(ctx, "user_1", types.ResourceDocumentCreate, time.Now().UTC())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestUsageRepo_SumSizeSince_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUsageRepo(db)
	ctx := context.Background()

	row := &mockRow{
		scanFn: func(dest ...any) error {
			*dest[0].(*int64) = 1024
			return nil
		},
	}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	total, err := repo.SumSizeSince(ctx, "user_1", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1024), total)
}
