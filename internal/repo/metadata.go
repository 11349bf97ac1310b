package repo

import (
	"context"

	"gorm.io/gorm"

	"ArchiveKeeper/internal/model"
)

type MetadataRepository interface {
	CreateDescriptive(ctx context.Context, d *model.DescriptiveMetadata) error
	GetDescriptive(ctx context.Context, fileID string) (*model.DescriptiveMetadata, error)
	UpdateDescriptive(ctx context.Context, fileID string, updates map[string]any) error

	CreatePreservation(ctx context.Context, p *model.PreservationMetadata) error
	GetPreservation(ctx context.Context, fileID string) (*model.PreservationMetadata, error)
	// UpdatePreservationWithVersion обновляет запись, только если lock_version совпадает
	// с ожидаемой, и увеличивает её. Несовпадение или отсутствие строки — gorm.ErrRecordNotFound.
	UpdatePreservationWithVersion(ctx context.Context, fileID string, expected int64, updates map[string]any) (int64, error)
}

type metadataRepo struct{ db *gorm.DB }

func NewMetadataRepository(db *gorm.DB) MetadataRepository { return &metadataRepo{db: db} }

func (r *metadataRepo) CreateDescriptive(ctx context.Context, d *model.DescriptiveMetadata) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *metadataRepo) GetDescriptive(ctx context.Context, fileID string) (*model.DescriptiveMetadata, error) {
	var d model.DescriptiveMetadata
	if err := r.db.WithContext(ctx).Where("file_id = ?", fileID).Take(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *metadataRepo) UpdateDescriptive(ctx context.Context, fileID string, updates map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&model.DescriptiveMetadata{}).
		Where("file_id = ?", fileID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *metadataRepo) CreatePreservation(ctx context.Context, p *model.PreservationMetadata) error {
	if p.LockVersion == 0 {
		p.LockVersion = 1
	}
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *metadataRepo) GetPreservation(ctx context.Context, fileID string) (*model.PreservationMetadata, error) {
	var p model.PreservationMetadata
	if err := r.db.WithContext(ctx).Where("file_id = ?", fileID).Take(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *metadataRepo) UpdatePreservationWithVersion(ctx context.Context, fileID string, expected int64, updates map[string]any) (int64, error) {
	next := expected + 1
	values := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["lock_version"] = next

	res := r.db.WithContext(ctx).
		Model(&model.PreservationMetadata{}).
		Where("file_id = ? AND lock_version = ?", fileID, expected).
		Updates(values)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return next, nil
}
