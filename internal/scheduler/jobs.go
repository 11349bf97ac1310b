package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ArchiveKeeper/internal/model"
	"ArchiveKeeper/internal/service"
)

const (
	JobFixity  = "fixity"
	JobBackup  = "backup"
	JobMonitor = "monitor"

	// FixityBatchResource — resource_id сводной записи ночной проверки.
	FixityBatchResource = "fixity-batch"

	daily = 24 * time.Hour
)

// BatchVerifier — пакетная проверка целостности (реализуется service.FixityService).
type BatchVerifier interface {
	VerifyAll(ctx context.Context, limit int) (service.BatchReport, error)
}

// LedgerRecorder — запись в журнал без распространения ошибок (реализуется service.AuditService).
type LedgerRecorder interface {
	Record(ctx context.Context, actor *int64, action model.AuditAction, resType model.AuditResource, resID string, d service.AuditDetails)
}

// FixityJob — ночная проверка: первая в ближайшую полночь, затем раз в сутки.
func FixityJob(v BatchVerifier, ledger LedgerRecorder, batch int, log *zap.SugaredLogger) Job {
	return Job{
		Name:     JobFixity,
		First:    NextMidnight,
		Interval: daily,
		Run: func(ctx context.Context) error {
			report, err := v.VerifyAll(ctx, batch)
			if err != nil {
				return fmt.Errorf("verify all: %w", err)
			}
			d := service.AuditDetails{NewValue: map[string]any{
				"total":       report.Total,
				"verified":    report.Verified,
				"failed":      report.Failed,
				"started_at":  report.StartedAt,
				"finished_at": report.FinishedAt,
			}}
			if report.Failed > 0 {
				d.ErrorMessage = fmt.Sprintf("%d of %d files failed fixity", report.Failed, report.Total)
				log.Errorw("nightly fixity found failures", "failed", report.Failed, "total", report.Total)
			}
			ledger.Record(ctx, nil, model.ActionValidate, model.ResourceFile, FixityBatchResource, d)
			return nil
		},
	}
}

// BackupJob — копия каталога в 2:00 по местному времени, затем раз в сутки; хранятся keep последних.
func BackupJob(b BackupStore, keep int, log *zap.SugaredLogger) Job {
	return Job{
		Name:     JobBackup,
		First:    NextAt(2),
		Interval: daily,
		Run: func(ctx context.Context) error {
			name, err := b.Backup(ctx)
			if err != nil {
				return fmt.Errorf("backup: %w", err)
			}
			log.Infow("catalog backup written", "name", name)

			removed, err := b.Prune(ctx, keep)
			if err != nil {
				return fmt.Errorf("prune backups: %w", err)
			}
			if len(removed) > 0 {
				log.Infow("old backups pruned", "removed", len(removed), "keep", keep)
			}
			return nil
		},
	}
}

// MonitorJob — проверки состояния сразу после старта и далее с интервалом.
func MonitorJob(m *Monitor, interval time.Duration) Job {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return Job{
		Name:     JobMonitor,
		First:    Immediately,
		Interval: interval,
		Run: func(ctx context.Context) error {
			m.Check(ctx)
			return nil
		},
	}
}
