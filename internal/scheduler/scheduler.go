// Package scheduler — фоновые задачи архива: ночная проверка целостности,
// резервное копирование каталога и мониторинг состояния.
//
// Каждая задача работает в своей горутине на собственном таймере,
// поэтому долгий прогон одной задачи не задерживает остальные.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Метрики планировщика
var (
	jobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_scheduler_job_runs_total",
		Help: "Количество запусков фоновых задач по результату",
	}, []string{"job", "result"})

	jobDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "archive_scheduler_job_duration_seconds",
		Help:    "Длительность выполнения фоновой задачи",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 30, 60, 300, 1800, 3600},
	}, []string{"job"})
)

// Job — периодическая задача. First вычисляет момент первого запуска
// относительно текущего времени, далее задача повторяется через Interval.
type Job struct {
	Name     string
	First    func(now time.Time) time.Time
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler запускает задачи и останавливает их при завершении процесса.
type Scheduler struct {
	log  *zap.SugaredLogger
	now  func() time.Time
	jobs []Job

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

func New(log *zap.SugaredLogger, jobs ...Job) *Scheduler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Scheduler{log: log, now: time.Now, jobs: jobs}
}

// Add регистрирует задачу. После Start новые задачи не принимаются.
func (s *Scheduler) Add(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already started")
	}
	if j.Run == nil || j.Interval <= 0 {
		return fmt.Errorf("job %q: run func and positive interval are required", j.Name)
	}
	s.jobs = append(s.jobs, j)
	return nil
}

// Start запускает все задачи. Повторный вызов ничего не делает.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	s.log.Infow("scheduler started", "jobs", len(s.jobs))
}

// Stop отменяет ожидающие таймеры и ждёт завершения выполняющихся задач.
// После возврата ни одна задача не будет запущена.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Infow("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	defer s.wg.Done()

	now := s.now()
	delay := time.Duration(0)
	if j.First != nil {
		delay = j.First(now).Sub(now)
	}
	if delay < 0 {
		delay = 0
	}
	s.log.Infow("job scheduled", "job", j.Name, "first_run_in", delay, "interval", j.Interval)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		// таймер и отмена могли сработать одновременно
		if ctx.Err() != nil {
			return
		}
		s.runJob(ctx, j)
		timer.Reset(j.Interval)
	}
}

// runJob выполняет задачу; ошибка или паника не останавливают планировщик.
func (s *Scheduler) runJob(ctx context.Context, j Job) {
	started := time.Now()
	result := "success"

	defer func() {
		if r := recover(); r != nil {
			result = "panic"
			s.log.Errorw("job panicked", "job", j.Name, "panic", r)
		}
		jobRunsTotal.WithLabelValues(j.Name, result).Inc()
		jobDurationSeconds.WithLabelValues(j.Name).Observe(time.Since(started).Seconds())
	}()

	if err := j.Run(ctx); err != nil {
		result = "error"
		s.log.Errorw("job failed", "job", j.Name, "duration", time.Since(started), "error", err)
		return
	}
	s.log.Infow("job finished", "job", j.Name, "duration", time.Since(started))
}

// Immediately — первый запуск сразу после старта.
func Immediately(now time.Time) time.Time { return now }

// NextMidnight — ближайшая локальная полночь строго после now.
func NextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}

// NextAt возвращает сегодняшний hour:00, если он ещё не наступил, иначе завтрашний.
func NextAt(hour int) func(now time.Time) time.Time {
	return func(now time.Time) time.Time {
		y, m, d := now.Date()
		t := time.Date(y, m, d, hour, 0, 0, 0, now.Location())
		if !t.After(now) {
			t = time.Date(y, m, d+1, hour, 0, 0, 0, now.Location())
		}
		return t
	}
}
