package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"ArchiveKeeper/internal/model"
)

func TestLockoutRepository_SaveUpsert(t *testing.T) {
	db := newTestDB(t)
	r := NewLockoutRepository(db)
	ctx := context.Background()

	_, err := r.Get(ctx, "alice")
	assert.Equal(t, gorm.ErrRecordNotFound, err)

	now := time.Now().UTC()
	require.NoError(t, r.Save(ctx, &model.AccountLockout{Identity: "alice", FailedAttempts: 1, LastAttemptAt: &now}))

	until := now.Add(15 * time.Minute)
	require.NoError(t, r.Save(ctx, &model.AccountLockout{
		Identity: "alice", FailedAttempts: 5, LastAttemptAt: &now, LockedUntil: &until, LockoutReason: "too many failed attempts",
	}))

	got, err := r.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 5, got.FailedAttempts)
	require.NotNil(t, got.LockedUntil)

	locked, err := r.ListLocked(ctx)
	require.NoError(t, err)
	assert.Len(t, locked, 1)

	// сброс перезаписывает счётчик нулём
	require.NoError(t, r.Save(ctx, &model.AccountLockout{Identity: "alice"}))
	got, err = r.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, got.FailedAttempts)
	assert.Nil(t, got.LockedUntil)

	locked, err = r.ListLocked(ctx)
	require.NoError(t, err)
	assert.Empty(t, locked)
}
