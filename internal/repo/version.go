package repo

import (
	"context"

	"gorm.io/gorm"

	"ArchiveKeeper/internal/model"
)

type VersionRepository interface {
	Create(ctx context.Context, v *model.FileVersion) error
	// ListByFile возвращает историю по возрастанию номера версии
	ListByFile(ctx context.Context, fileID string) ([]model.FileVersion, error)
	Get(ctx context.Context, fileID string, number int64) (*model.FileVersion, error)
}

type versionRepo struct{ db *gorm.DB }

func NewVersionRepository(db *gorm.DB) VersionRepository { return &versionRepo{db: db} }

func (r *versionRepo) Create(ctx context.Context, v *model.FileVersion) error {
	return r.db.WithContext(ctx).Create(v).Error
}

func (r *versionRepo) ListByFile(ctx context.Context, fileID string) ([]model.FileVersion, error) {
	var out []model.FileVersion
	err := r.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("version_number ASC").
		Find(&out).Error
	return out, err
}

func (r *versionRepo) Get(ctx context.Context, fileID string, number int64) (*model.FileVersion, error) {
	var v model.FileVersion
	err := r.db.WithContext(ctx).
		Where("file_id = ? AND version_number = ?", fileID, number).
		Take(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}
