package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	monitorHeapBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "archive_monitor_heap_bytes",
		Help: "Объём кучи процесса на момент последней проверки",
	})

	monitorDiskUsedRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "archive_monitor_disk_used_ratio",
		Help: "Доля занятого места на томе хранилища (0..1)",
	})
)

// Level — важность оповещения.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Проверки монитора
const (
	CheckMemory   = "memory"
	CheckStorage  = "storage"
	CheckDatabase = "database"
)

// approachRatio — доля порога предупреждения, с которой выдаётся info.
const approachRatio = 0.8

const pingTimeout = 5 * time.Second

// Alert — оповещение по одной проверке.
type Alert struct {
	Level   Level     `json:"level"`
	Check   string    `json:"check"`
	Message string    `json:"message"`
	Value   float64   `json:"value"`
	At      time.Time `json:"at"`
}

// Notifier — внешний канал для критических оповещений.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// LogNotifier пишет критические оповещения в журнал процесса.
type LogNotifier struct {
	log *zap.SugaredLogger
}

func NewLogNotifier(log *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, a Alert) error {
	n.log.Errorw("CRITICAL ALERT", "check", a.Check, "message", a.Message, "value", a.Value, "at", a.At)
	return nil
}

// Pinger — проверка доступности БД (реализуется repo.Store).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Thresholds — пороги оповещений. Нулевой порог отключает проверку уровня.
type Thresholds struct {
	MemoryWarnMB        int
	MemoryCriticalMB    int
	DiskWarnPercent     int
	DiskCriticalPercent int
}

// Monitor выполняет проверки состояния и рассылает оповещения.
type Monitor struct {
	db          Pinger
	storageRoot string
	limits      Thresholds
	notifier    Notifier
	log         *zap.SugaredLogger
	now         func() time.Time

	heapBytes func() uint64
	diskUsage func(path string) (total, used int64, err error)

	mu   sync.Mutex
	last []Alert
}

func NewMonitor(db Pinger, storageRoot string, limits Thresholds, notifier Notifier, log *zap.SugaredLogger) *Monitor {
	if notifier == nil {
		notifier = NewLogNotifier(log)
	}
	return &Monitor{
		db:          db,
		storageRoot: storageRoot,
		limits:      limits,
		notifier:    notifier,
		log:         log,
		now:         time.Now,
		heapBytes:   readHeap,
		diskUsage:   diskUsage,
	}
}

func readHeap() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// Check выполняет все проверки и возвращает поднятые оповещения.
func (m *Monitor) Check(ctx context.Context) []Alert {
	at := m.now()
	var alerts []Alert

	heap := m.heapBytes()
	monitorHeapBytes.Set(float64(heap))
	heapMB := float64(heap) / (1 << 20)
	if a, ok := classify(CheckMemory, heapMB, float64(m.limits.MemoryWarnMB), float64(m.limits.MemoryCriticalMB),
		fmt.Sprintf("heap usage %.1f MB", heapMB)); ok {
		alerts = append(alerts, a)
	}

	if m.storageRoot != "" {
		total, used, err := m.diskUsage(m.storageRoot)
		switch {
		case err != nil:
			alerts = append(alerts, Alert{Level: LevelWarning, Check: CheckStorage, Message: "storage capacity unavailable: " + err.Error()})
		case total > 0:
			ratio := float64(used) / float64(total)
			monitorDiskUsedRatio.Set(ratio)
			pct := ratio * 100
			if a, ok := classify(CheckStorage, pct, float64(m.limits.DiskWarnPercent), float64(m.limits.DiskCriticalPercent),
				fmt.Sprintf("storage volume %.1f%% used", pct)); ok {
				alerts = append(alerts, a)
			}
		}
	}

	if m.db != nil {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := m.db.Ping(pctx)
		cancel()
		if err != nil {
			alerts = append(alerts, Alert{Level: LevelCritical, Check: CheckDatabase, Message: "database unreachable: " + err.Error()})
		}
	}

	for i := range alerts {
		alerts[i].At = at
		m.dispatch(ctx, alerts[i])
	}
	if len(alerts) == 0 {
		m.log.Debugw("health checks passed", "heap_mb", heapMB)
	}

	m.mu.Lock()
	m.last = alerts
	m.mu.Unlock()
	return alerts
}

// LastAlerts — оповещения последней проверки.
func (m *Monitor) LastAlerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Alert(nil), m.last...)
}

func (m *Monitor) dispatch(ctx context.Context, a Alert) {
	switch a.Level {
	case LevelCritical:
		m.log.Errorw("health alert", "level", a.Level, "check", a.Check, "message", a.Message)
		if err := m.notifier.Notify(ctx, a); err != nil {
			m.log.Warnw("alert notification failed", "check", a.Check, "error", err)
		}
	case LevelWarning:
		m.log.Warnw("health alert", "level", a.Level, "check", a.Check, "message", a.Message)
	default:
		m.log.Infow("health alert", "level", a.Level, "check", a.Check, "message", a.Message)
	}
}

// classify сравнивает значение с порогами. info — при приближении к порогу предупреждения.
func classify(check string, value, warn, critical float64, msg string) (Alert, bool) {
	a := Alert{Check: check, Message: msg, Value: value}
	switch {
	case critical > 0 && value >= critical:
		a.Level = LevelCritical
	case warn > 0 && value >= warn:
		a.Level = LevelWarning
	case warn > 0 && value >= warn*approachRatio:
		a.Level = LevelInfo
	default:
		return Alert{}, false
	}
	return a, true
}
