package model

import (
	"time"

	"gorm.io/datatypes"
)

// ResourceType — тип ресурса по словарю Dublin Core (dc:type).
type ResourceType string

const (
	TypeDocument   ResourceType = "document"
	TypeVideo      ResourceType = "video"
	TypeAudio      ResourceType = "audio"
	TypeImage      ResourceType = "image"
	TypeSoftware   ResourceType = "software"
	TypeCollection ResourceType = "collection"
)

func (t ResourceType) Valid() bool {
	switch t {
	case TypeDocument, TypeVideo, TypeAudio, TypeImage, TypeSoftware, TypeCollection:
		return true
	}
	return false
}

// DescriptiveMetadata — описательные метаданные (один к одному с ArchivedFile).
type DescriptiveMetadata struct {
	FileID      string       `gorm:"primaryKey;type:uuid" json:"file_id"`
	Title       string       `gorm:"not null" json:"title"`
	Creator     string       `gorm:"not null;index" json:"creator"`
	Subject     string       `json:"subject,omitempty"`
	Description string       `json:"description,omitempty"`
	Publisher   string       `json:"publisher,omitempty"`
	Type        ResourceType `gorm:"size:16" json:"type"`
	Format      string       `json:"format,omitempty"`
	Language    string       `gorm:"size:16" json:"language"`
	Rights      string       `json:"rights,omitempty"`
	Source      string       `json:"source,omitempty"`

	// Каноническое представление для экспорта (Dublin Core JSON)
	Export datatypes.JSON `json:"export,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DescriptiveMetadata) TableName() string { return "descriptive_metadata" }

// PreservationLevel — уровень сохранности.
type PreservationLevel string

const (
	LevelBit       PreservationLevel = "bit"
	LevelReference PreservationLevel = "reference"
	LevelFull      PreservationLevel = "full"
)

func (l PreservationLevel) Valid() bool {
	switch l {
	case LevelBit, LevelReference, LevelFull:
		return true
	}
	return false
}

// EventType — тип события сохранности.
type EventType string

const (
	EventCapture      EventType = "capture"
	EventCreation     EventType = "creation"
	EventModification EventType = "modification"
	EventAccess       EventType = "access"
	EventMigration    EventType = "migration"
	EventValidation   EventType = "validation"
)

func (e EventType) Valid() bool {
	switch e {
	case EventCapture, EventCreation, EventModification, EventAccess, EventMigration, EventValidation:
		return true
	}
	return false
}

// PreservationEvent — запись о том, что произошло с объектом. Только добавляется.
type PreservationEvent struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail"`
	Agent     string    `json:"agent"`
}

// PreservationMetadata — метаданные сохранности (один к одному с ArchivedFile).
// LockVersion — версия для оптимистической блокировки при дописывании событий.
type PreservationMetadata struct {
	FileID            string            `gorm:"primaryKey;type:uuid" json:"file_id"`
	ObjectIdentifier  string            `gorm:"not null;uniqueIndex" json:"object_identifier"`
	DigestAlgorithm   string            `gorm:"not null" json:"digest_algorithm"`
	DigestValue       string            `gorm:"not null" json:"digest_value"`
	DigestValidatedAt *time.Time        `json:"digest_validated_at,omitempty"`
	Format            string            `json:"format,omitempty"`
	Level             PreservationLevel `gorm:"not null;size:16" json:"level"`

	Events datatypes.JSONSlice[PreservationEvent] `json:"events"`

	LockVersion int64 `gorm:"not null;default:1" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PreservationMetadata) TableName() string { return "preservation_metadata" }
