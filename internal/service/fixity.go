package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"ArchiveKeeper/internal/apperr"
	"ArchiveKeeper/internal/model"
	"ArchiveKeeper/internal/repo"
)

// Метрики проверки целостности
var (
	fixityChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_fixity_checks_total",
		Help: "Количество проверок целостности по результату",
	}, []string{"result"})

	fixityCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "archive_fixity_check_duration_seconds",
		Help:    "Длительность проверки целостности одного файла",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
	})
)

// Результаты проверки для метрик и отчёта.
const (
	FixityValid   = "valid"
	FixityInvalid = "invalid"
	FixityMissing = "missing"
	FixityUnknown = "unknown"
	FixityError   = "error"
)

const (
	DefaultFixityConcurrency = 4
	DefaultFixityBatch       = 1000
	defaultReportHistory     = 10
)

// VerifyResult — итог проверки одного файла.
type VerifyResult struct {
	FileID    string    `json:"file_id"`
	IsValid   bool      `json:"is_valid"`
	Error     string    `json:"error,omitempty"`
	Expected  string    `json:"expected"`
	Actual    string    `json:"actual,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// FileError — неудачная проверка в пакетном прогоне.
type FileError struct {
	FileID   string `json:"file_id"`
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// BatchReport — итог пакетной проверки. Прогон не прерывается на отдельных ошибках.
type BatchReport struct {
	Total      int         `json:"total"`
	Verified   int         `json:"verified"`
	Failed     int         `json:"failed"`
	Errors     []FileError `json:"errors"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// FixityCheck — одна проверка из истории.
type FixityCheck struct {
	CheckedAt time.Time `json:"checked_at"`
	IsValid   bool      `json:"is_valid"`
	Expected  string    `json:"expected,omitempty"`
	Actual    string    `json:"actual,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// FixityReport — история проверок файла и итоговый статус.
type FixityReport struct {
	FileID      string        `json:"file_id"`
	Status      string        `json:"status"`
	LastChecked *time.Time    `json:"last_checked,omitempty"`
	History     []FixityCheck `json:"history"`
}

// fixityPayload — то, что проверка кладёт в new_value записи VALIDATE.
type fixityPayload struct {
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	IsValid  bool   `json:"is_valid"`
}

// FixityService пересчитывает дайджесты хранимого содержимого и сравнивает с зарегистрированными.
type FixityService struct {
	store       *repo.Store
	content     *ContentStore
	metadata    *MetadataService
	audit       *AuditService
	log         *zap.SugaredLogger
	concurrency int
	now         func() time.Time
}

func NewFixityService(store *repo.Store, content *ContentStore, metadata *MetadataService, audit *AuditService, log *zap.SugaredLogger, concurrency int) *FixityService {
	if concurrency <= 0 {
		concurrency = DefaultFixityConcurrency
	}
	return &FixityService{
		store:       store,
		content:     content,
		metadata:    metadata,
		audit:       audit,
		log:         log,
		concurrency: concurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// VerifyFile проверяет один файл. Недоступное содержимое — IsValid=false, Error="missing", без ошибки.
// Каждая проверка оставляет запись VALIDATE в журнале.
func (s *FixityService) VerifyFile(ctx context.Context, fileID string, actor *int64) (VerifyResult, error) {
	started := time.Now()
	defer func() { fixityCheckDuration.Observe(time.Since(started).Seconds()) }()

	f, err := s.store.Files.GetByID(ctx, fileID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return VerifyResult{}, apperr.NotFound("file %s not found", fileID)
	}
	if err != nil {
		fixityChecksTotal.WithLabelValues(FixityError).Inc()
		return VerifyResult{}, apperr.Internal(err, "load file")
	}

	res := VerifyResult{FileID: f.ID, Expected: f.FileHash, CheckedAt: s.now()}
	agent := AgentFor(actor)

	actual, _, err := s.content.Digest(f.StoragePath)
	if err != nil {
		res.Error = FixityMissing
		fixityChecksTotal.WithLabelValues(FixityMissing).Inc()
		s.log.Warnw("fixity check: content missing", "file_id", f.ID, "path", f.StoragePath, "error", err)
		s.audit.Record(ctx, actor, model.ActionValidate, model.ResourceFile, f.ID, AuditDetails{
			NewValue:     fixityPayload{Expected: f.FileHash},
			ErrorMessage: FixityMissing,
		})
		if err := s.metadata.RecordEvent(ctx, f.ID, model.EventValidation, "fixity check FAILED: content missing", agent); err != nil {
			s.log.Warnw("preservation validation event failed", "file_id", f.ID, "error", err)
		}
		return res, nil
	}

	res.Actual = actual
	res.IsValid = actual == f.FileHash

	details := AuditDetails{NewValue: fixityPayload{Expected: f.FileHash, Actual: actual, IsValid: res.IsValid}}
	if res.IsValid {
		fixityChecksTotal.WithLabelValues(FixityValid).Inc()
	} else {
		res.Error = apperr.Integrity("digest mismatch").Error()
		details.ErrorMessage = "digest mismatch"
		fixityChecksTotal.WithLabelValues(FixityInvalid).Inc()
		s.log.Errorw("fixity mismatch", "file_id", f.ID, "expected", f.FileHash, "actual", actual)
	}
	s.audit.Record(ctx, actor, model.ActionValidate, model.ResourceFile, f.ID, details)

	if _, err := s.metadata.ValidateFixity(ctx, f.ID, actual, agent); err != nil {
		s.log.Warnw("preservation validation event failed", "file_id", f.ID, "error", err)
	}
	return res, nil
}

// VerifyAll проверяет до limit доступных файлов (самые свежие первыми) с ограниченным параллелизмом.
func (s *FixityService) VerifyAll(ctx context.Context, limit int) (BatchReport, error) {
	if limit <= 0 {
		limit = DefaultFixityBatch
	}
	report := BatchReport{StartedAt: s.now(), Errors: []FileError{}}

	files, err := s.store.Files.ListAccessible(ctx, limit)
	if err != nil {
		return report, apperr.Internal(err, "list files for fixity")
	}

	results := make([]VerifyResult, len(files))
	failures := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range files {
		g.Go(func() error {
			// отдельная ошибка не должна отменять остальные проверки
			results[i], failures[i] = s.VerifyFile(gctx, files[i].ID, nil)
			return nil
		})
	}
	_ = g.Wait()

	report.Total = len(files)
	for i, f := range files {
		switch {
		case failures[i] != nil:
			report.Failed++
			report.Errors = append(report.Errors, FileError{FileID: f.ID, Filename: f.Filename, Error: failures[i].Error()})
		case results[i].IsValid:
			report.Verified++
		default:
			report.Failed++
			report.Errors = append(report.Errors, FileError{FileID: f.ID, Filename: f.Filename, Error: results[i].Error})
		}
	}
	report.FinishedAt = s.now()

	s.log.Infow("fixity batch finished",
		"total", report.Total,
		"verified", report.Verified,
		"failed", report.Failed,
	)
	return report, nil
}

// GetFixityReport восстанавливает историю последних проверок по журналу.
// unknown — файла нет; invalid — последняя проверка неуспешна; иначе valid.
func (s *FixityService) GetFixityReport(ctx context.Context, fileID string, limit int) (FixityReport, error) {
	report := FixityReport{FileID: fileID, Status: FixityUnknown, History: []FixityCheck{}}

	if _, err := s.store.Files.GetByID(ctx, fileID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return report, nil
		}
		return report, apperr.Internal(err, "load file")
	}

	if limit <= 0 {
		limit = defaultReportHistory
	}
	entries, _, err := s.audit.Search(ctx, AuditCriteria{
		Action:       model.ActionValidate,
		ResourceType: model.ResourceFile,
		ResourceID:   fileID,
		Limit:        limit,
	})
	if err != nil {
		return report, err
	}

	for _, e := range entries {
		check := FixityCheck{CheckedAt: e.CreatedAt, IsValid: e.Success, Error: e.ErrorMessage}
		var p fixityPayload
		if len(e.NewValue) > 0 && json.Unmarshal(e.NewValue, &p) == nil {
			check.Expected, check.Actual = p.Expected, p.Actual
			check.IsValid = e.Success && p.IsValid
		}
		report.History = append(report.History, check)
	}

	report.Status = FixityValid
	if len(report.History) > 0 {
		last := report.History[0]
		report.LastChecked = &last.CheckedAt
		if !last.IsValid {
			report.Status = FixityInvalid
		}
	}
	return report, nil
}
