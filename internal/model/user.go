package model

import "time"

// User — учётная запись. Контактный e-mail хранится либо открыто (схема v1),
// либо как шифртекст + детерминированный хеш для поиска (схема v2+).
type User struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Login    string `gorm:"not null;uniqueIndex" json:"login"`
	Password string `gorm:"not null" json:"-"`

	Email       *string `json:"-"`
	EmailCipher *string `json:"-"`
	EmailHash   *string `gorm:"uniqueIndex" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// AccountLockout — состояние защиты от перебора для одного идентификатора.
type AccountLockout struct {
	Identity       string     `gorm:"primaryKey;size:255" json:"identity"`
	FailedAttempts int        `gorm:"not null" json:"failed_attempts"`
	LastAttemptAt  *time.Time `json:"last_attempt_at,omitempty"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	LockoutReason  string     `json:"lockout_reason,omitempty"`

	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AccountLockout) TableName() string { return "account_lockouts" }
