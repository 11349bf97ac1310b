package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"ArchiveKeeper/internal/model"
)

// AuditFilter — условия выборки журнала. Пустые поля не фильтруют.
type AuditFilter struct {
	ActorID      *int64
	Action       model.AuditAction
	ResourceType model.AuditResource
	ResourceID   string
	Success      *bool
	From         *time.Time
	To           *time.Time

	Limit  int
	Offset int
}

// AuditRepository — только добавление и чтение. Обновления и удаления намеренно не предусмотрены.
type AuditRepository interface {
	Create(ctx context.Context, e *model.AuditLog) error
	// List возвращает записи от новых к старым и общее число совпадений
	List(ctx context.Context, f AuditFilter) ([]model.AuditLog, int64, error)
}

type auditRepo struct{ db *gorm.DB }

func NewAuditRepository(db *gorm.DB) AuditRepository { return &auditRepo{db: db} }

func (r *auditRepo) Create(ctx context.Context, e *model.AuditLog) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *auditRepo) List(ctx context.Context, f AuditFilter) ([]model.AuditLog, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.AuditLog{})
	if f.ActorID != nil {
		q = q.Where("actor_id = ?", *f.ActorID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.ResourceType != "" {
		q = q.Where("resource_type = ?", f.ResourceType)
	}
	if f.ResourceID != "" {
		q = q.Where("resource_id = ?", f.ResourceID)
	}
	if f.Success != nil {
		q = q.Where("success = ?", *f.Success)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []model.AuditLog
	page := q.Order("created_at DESC").Order("id DESC")
	if f.Limit > 0 {
		page = page.Limit(f.Limit)
	}
	if f.Offset > 0 {
		page = page.Offset(f.Offset)
	}
	if err := page.Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
