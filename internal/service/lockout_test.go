package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArchiveKeeper/internal/apperr"
	"ArchiveKeeper/internal/model"
)

// fakeClock — управляемые часы для проверок, зависящих от времени
type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{cur: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.cur = c.cur.Add(d)
	c.mu.Unlock()
}

func TestLockoutService_Threshold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	clock := newFakeClock()
	env.lockout.now = clock.Now

	for i := 1; i <= 4; i++ {
		info, err := env.lockout.RecordFailedAttempt(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, i, info.FailedAttempts)
		assert.Equal(t, 5-i, info.RemainingAttempts)
	}
	locked, err := env.lockout.IsLocked(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, locked, "4 failures do not lock")

	info, err := env.lockout.RecordFailedAttempt(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, info.Locked)
	assert.Zero(t, info.RemainingAttempts)
	assert.NotEmpty(t, info.Reason)

	locked, err = env.lockout.IsLocked(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, locked)

	info, err = env.lockout.GetInfo(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, info.LockedUntil)
	assert.WithinDuration(t, clock.Now().Add(15*time.Minute), *info.LockedUntil, time.Second)

	// неизвестный идентификатор всегда свободен
	info, err = env.lockout.GetInfo(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, info.Locked)
	assert.Zero(t, info.FailedAttempts)
	assert.Equal(t, 5, info.RemainingAttempts)
}

func TestLockoutService_ExpiryResets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	clock := newFakeClock()
	env.lockout.now = clock.Now

	for i := 0; i < 5; i++ {
		_, err := env.lockout.RecordFailedAttempt(ctx, "bob")
		require.NoError(t, err)
	}
	clock.Advance(15*time.Minute + time.Second)

	locked, err := env.lockout.IsLocked(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, locked)

	info, err := env.lockout.GetInfo(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, info.FailedAttempts, "counter reset after lock expiry")
	assert.Nil(t, info.LockedUntil)

	// после истечения блокировки счёт начинается заново
	info, err = env.lockout.RecordFailedAttempt(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, info.FailedAttempts)
	assert.False(t, info.Locked)
}

func TestLockoutService_ExpiredLockResetsOnNextFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	clock := newFakeClock()
	env.lockout.now = clock.Now

	for i := 0; i < 5; i++ {
		_, err := env.lockout.RecordFailedAttempt(ctx, "carol")
		require.NoError(t, err)
	}
	clock.Advance(time.Hour)

	info, err := env.lockout.RecordFailedAttempt(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, 1, info.FailedAttempts)
	assert.False(t, info.Locked)
}

func TestLockoutService_UnlockAndClear(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := env.lockout.RecordFailedAttempt(ctx, "dave")
		require.NoError(t, err)
	}
	locked, err := env.lockout.ListLocked(ctx)
	require.NoError(t, err)
	require.Len(t, locked, 1)
	assert.Equal(t, "dave", locked[0].Identity)

	require.NoError(t, env.lockout.UnlockAccount(ctx, "dave", "verified by phone", int64p(1)))
	info, err := env.lockout.GetInfo(ctx, "dave")
	require.NoError(t, err)
	assert.False(t, info.Locked)
	assert.Zero(t, info.FailedAttempts)

	entries, _, err := env.audit.QueryByResource(ctx, "dave", 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.ActionUpdate, entries[0].Action)
	assert.Equal(t, model.ResourceUser, entries[0].ResourceType)
	assert.Equal(t, "verified by phone", entries[0].Reason)

	// снятие блокировки с чистого идентификатора — не ошибка
	require.NoError(t, env.lockout.UnlockAccount(ctx, "erin", "", nil))

	_, err = env.lockout.RecordFailedAttempt(ctx, "dave")
	require.NoError(t, err)
	require.NoError(t, env.lockout.ClearFailedAttempts(ctx, "dave"))
	info, err = env.lockout.GetInfo(ctx, "dave")
	require.NoError(t, err)
	assert.Zero(t, info.FailedAttempts)

	_, err = env.lockout.RecordFailedAttempt(ctx, "   ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestLockoutService_ConcurrentFailuresAreNotLost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.lockout.RecordFailedAttempt(ctx, "storm")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	info, err := env.lockout.GetInfo(ctx, "storm")
	require.NoError(t, err)
	assert.Equal(t, n, info.FailedAttempts)
	assert.True(t, info.Locked)
}
