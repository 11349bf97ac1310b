package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditAction — действие, фиксируемое в журнале.
type AuditAction string

const (
	ActionCreate   AuditAction = "CREATE"
	ActionRead     AuditAction = "READ"
	ActionUpdate   AuditAction = "UPDATE"
	ActionDelete   AuditAction = "DELETE"
	ActionDownload AuditAction = "DOWNLOAD"
	ActionShare    AuditAction = "SHARE"
	ActionValidate AuditAction = "VALIDATE"
)

func (a AuditAction) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionDownload, ActionShare, ActionValidate:
		return true
	}
	return false
}

// AuditResource — тип ресурса записи журнала.
type AuditResource string

const (
	ResourceFile     AuditResource = "file"
	ResourceMetadata AuditResource = "metadata"
	ResourceUser     AuditResource = "user"
	ResourceVersion  AuditResource = "version"
)

func (r AuditResource) Valid() bool {
	switch r {
	case ResourceFile, ResourceMetadata, ResourceUser, ResourceVersion:
		return true
	}
	return false
}

// AuditLog — запись журнала происхождения. Приложение её никогда не изменяет и не удаляет.
// ActorID == nil для системных действий.
type AuditLog struct {
	ID           int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	ActorID      *int64        `gorm:"index" json:"actor_id,omitempty"`
	Action       AuditAction   `gorm:"not null;size:16;index" json:"action"`
	ResourceType AuditResource `gorm:"not null;size:16;index" json:"resource_type"`
	ResourceID   string        `gorm:"not null;index" json:"resource_id"`

	OldValue datatypes.JSON `json:"old_value,omitempty"`
	NewValue datatypes.JSON `json:"new_value,omitempty"`

	Reason    string `json:"reason,omitempty"`
	IPAddress string `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	Success      bool   `gorm:"not null" json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
