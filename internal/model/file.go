package model

import (
	"time"

	"gorm.io/datatypes"
)

// AccessLevel — уровень доступа к архивному объекту.
type AccessLevel string

const (
	AccessPublic       AccessLevel = "public"
	AccessInternal     AccessLevel = "internal"
	AccessRestricted   AccessLevel = "restricted"
	AccessConfidential AccessLevel = "confidential"
)

// Valid сообщает, входит ли значение в перечисление.
func (a AccessLevel) Valid() bool {
	switch a {
	case AccessPublic, AccessInternal, AccessRestricted, AccessConfidential:
		return true
	}
	return false
}

// ArchivedFile — зарегистрированный объект архива.
// FileHash уникален и меняется только при создании новой версии.
type ArchivedFile struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Filename    string `gorm:"not null" json:"filename"`
	StoragePath string `gorm:"not null" json:"storage_path"`
	FileHash    string `gorm:"not null;uniqueIndex" json:"file_hash"`
	MimeType    string `json:"mime_type"`
	Size        int64  `gorm:"not null;default:0" json:"size"`
	Category    string `gorm:"index" json:"category,omitempty"`
	OwnerID     *int64 `gorm:"index" json:"owner_id,omitempty"`

	// Рейтинг (если объект оценивался пользователями)
	Rating *float64 `json:"rating,omitempty"`

	CurrentVersion int64       `gorm:"not null;default:1" json:"current_version"`
	IsAccessible   bool        `gorm:"not null" json:"is_accessible"`
	AccessLevel    AccessLevel `gorm:"not null;size:16" json:"access_level"`

	// Мягкое удаление: строка никогда не удаляется физически
	Deleted   bool       `gorm:"not null;default:false;index" json:"deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index" json:"updated_at"`

	// Связи (каскадное удаление метаданных и версий вместе с записью файла)
	Descriptive  *DescriptiveMetadata  `gorm:"foreignKey:FileID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Preservation *PreservationMetadata `gorm:"foreignKey:FileID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Versions     []FileVersion         `gorm:"foreignKey:FileID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

func (ArchivedFile) TableName() string { return "archived_files" }

// VersionChange — структурированное описание изменения между версиями.
type VersionChange struct {
	PreviousHash string `json:"previous_hash,omitempty"`
	SizeDelta    int64  `json:"size_delta"`
}

// FileVersion — неизменяемая запись истории версий.
type FileVersion struct {
	ID            int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID        string `gorm:"type:uuid;not null;uniqueIndex:idx_file_version" json:"file_id"`
	VersionNumber int64  `gorm:"not null;uniqueIndex:idx_file_version" json:"version_number"`
	FileHash      string `gorm:"not null;index" json:"file_hash"`
	Size          int64  `gorm:"not null" json:"size"`
	StoragePath   string `gorm:"not null" json:"storage_path"`
	CreatedBy     *int64 `json:"created_by,omitempty"`
	ChangeSummary string `json:"change_summary,omitempty"`

	ChangeMetadata datatypes.JSONType[VersionChange] `json:"change_metadata"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (FileVersion) TableName() string { return "file_versions" }
