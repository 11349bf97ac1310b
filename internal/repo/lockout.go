package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ArchiveKeeper/internal/model"
)

type LockoutRepository interface {
	// Get возвращает состояние идентификатора; нет записи — gorm.ErrRecordNotFound
	Get(ctx context.Context, identity string) (*model.AccountLockout, error)
	// Save вставляет или перезаписывает состояние целиком
	Save(ctx context.Context, l *model.AccountLockout) error
	ListLocked(ctx context.Context) ([]model.AccountLockout, error)
}

type lockoutRepo struct{ db *gorm.DB }

func NewLockoutRepository(db *gorm.DB) LockoutRepository { return &lockoutRepo{db: db} }

func (r *lockoutRepo) Get(ctx context.Context, identity string) (*model.AccountLockout, error) {
	var l model.AccountLockout
	q := r.db.WithContext(ctx)
	if q.Dialector.Name() == DialectPostgres {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.Where("identity = ?", identity).Take(&l).Error; err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *lockoutRepo) Save(ctx context.Context, l *model.AccountLockout) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identity"}},
			DoUpdates: clause.AssignmentColumns([]string{"failed_attempts", "last_attempt_at", "locked_until", "lockout_reason", "updated_at"}),
		}).
		Create(l).Error
}

func (r *lockoutRepo) ListLocked(ctx context.Context) ([]model.AccountLockout, error) {
	var out []model.AccountLockout
	err := r.db.WithContext(ctx).
		Where("locked_until IS NOT NULL").
		Order("identity ASC").
		Find(&out).Error
	return out, err
}
