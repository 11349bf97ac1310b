package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type captureNotifier struct {
	alerts []Alert
	err    error
}

func (n *captureNotifier) Notify(_ context.Context, a Alert) error {
	n.alerts = append(n.alerts, a)
	return n.err
}

func newTestMonitor(heapMB uint64, used, total int64, diskErr, pingErr error, n Notifier) *Monitor {
	m := NewMonitor(pingerFunc(func(context.Context) error { return pingErr }), "/archive",
		Thresholds{MemoryWarnMB: 512, MemoryCriticalMB: 1024, DiskWarnPercent: 80, DiskCriticalPercent: 95},
		n, zap.NewNop().Sugar())
	m.heapBytes = func() uint64 { return heapMB << 20 }
	m.diskUsage = func(string) (int64, int64, error) { return total, used, diskErr }
	m.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return m
}

func TestClassify(t *testing.T) {
	cases := []struct {
		value float64
		want  Level
		raise bool
	}{
		{10, "", false},
		{400, LevelInfo, true},
		{600, LevelWarning, true},
		{1024, LevelCritical, true},
	}
	for _, tc := range cases {
		a, ok := classify(CheckMemory, tc.value, 512, 1024, "heap")
		assert.Equal(t, tc.raise, ok, "value %v", tc.value)
		assert.Equal(t, tc.want, a.Level, "value %v", tc.value)
	}

	_, ok := classify(CheckMemory, 1e9, 0, 0, "disabled")
	assert.False(t, ok)
}

func TestMonitor_Healthy(t *testing.T) {
	n := &captureNotifier{}
	m := newTestMonitor(64, 10, 100, nil, nil, n)

	alerts := m.Check(context.Background())
	assert.Empty(t, alerts)
	assert.Empty(t, n.alerts)
}

func TestMonitor_RaisesAlerts(t *testing.T) {
	n := &captureNotifier{err: errors.New("channel down")}
	m := newTestMonitor(600, 96, 100, nil, errors.New("connection refused"), n)

	alerts := m.Check(context.Background())
	require.Len(t, alerts, 3)

	levels := map[string]Level{}
	for _, a := range alerts {
		levels[a.Check] = a.Level
		assert.False(t, a.At.IsZero())
	}
	assert.Equal(t, LevelWarning, levels[CheckMemory])
	assert.Equal(t, LevelCritical, levels[CheckStorage])
	assert.Equal(t, LevelCritical, levels[CheckDatabase])

	// во внешний канал уходят только критические; ошибка канала не прерывает проверку
	require.Len(t, n.alerts, 2)
	for _, a := range n.alerts {
		assert.Equal(t, LevelCritical, a.Level)
	}
	assert.Len(t, m.LastAlerts(), 3)
}

func TestMonitor_StorageUnavailable(t *testing.T) {
	m := newTestMonitor(1, 0, 0, errors.New("no such file"), nil, &captureNotifier{})

	alerts := m.Check(context.Background())
	require.Len(t, alerts, 1)
	assert.Equal(t, CheckStorage, alerts[0].Check)
	assert.Equal(t, LevelWarning, alerts[0].Level)
}

func TestMonitorJob(t *testing.T) {
	m := newTestMonitor(1, 1, 100, nil, nil, &captureNotifier{})
	job := MonitorJob(m, 0)
	assert.Equal(t, 5*time.Minute, job.Interval)

	now := time.Now()
	assert.Equal(t, now, job.First(now), "runs immediately")
	require.NoError(t, job.Run(context.Background()))
}
