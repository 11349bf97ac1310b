package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"ArchiveKeeper/internal/apperr"
	"ArchiveKeeper/internal/model"
	"ArchiveKeeper/internal/repo"
)

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 15 * time.Minute
)

// LockoutInfo — состояние защиты от перебора для отображения.
type LockoutInfo struct {
	Identity          string     `json:"identity"`
	FailedAttempts    int        `json:"failed_attempts"`
	RemainingAttempts int        `json:"remaining_attempts"`
	Locked            bool       `json:"locked"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
	Reason            string     `json:"reason,omitempty"`
}

// LockoutService считает неудачные попытки входа и временно блокирует идентификатор.
//
// Состояния: Clear → Flagged(n) → Locked(until). Истёкшая блокировка снимается лениво при чтении.
// Изменения одного идентификатора сериализуются мьютексом на ключ и транзакцией с блокировкой строки.
type LockoutService struct {
	store     *repo.Store
	audit     *AuditService
	log       *zap.SugaredLogger
	threshold int
	duration  time.Duration
	now       func() time.Time
	locks     *keyedMutex
}

func NewLockoutService(store *repo.Store, audit *AuditService, log *zap.SugaredLogger, threshold int, duration time.Duration) *LockoutService {
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}
	return &LockoutService{
		store:     store,
		audit:     audit,
		log:       log,
		threshold: threshold,
		duration:  duration,
		now:       func() time.Time { return time.Now().UTC() },
		locks:     newKeyedMutex(),
	}
}

func normalizeIdentity(identity string) (string, error) {
	id := strings.TrimSpace(identity)
	if id == "" {
		return "", apperr.Validation("identity is required")
	}
	return id, nil
}

// mutate выполняет fn над записью идентификатора под мьютексом и в транзакции, затем сохраняет её.
// Отсутствующая запись передаётся в fn как пустая (Clear).
func (s *LockoutService) mutate(ctx context.Context, identity string, fn func(rec *model.AccountLockout, now time.Time) bool) (*model.AccountLockout, error) {
	unlock := s.locks.Lock(identity)
	defer unlock()

	var out *model.AccountLockout
	err := s.store.InTx(ctx, func(r *repo.Repositories) error {
		rec, err := r.Lockouts.Get(ctx, identity)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec = &model.AccountLockout{Identity: identity}
		case err != nil:
			return err
		}
		now := s.now()
		if fn(rec, now) {
			if err := r.Lockouts.Save(ctx, rec); err != nil {
				return err
			}
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, apperr.Internal(err, "update lockout state for %q", identity)
	}
	return out, nil
}

func expired(rec *model.AccountLockout, now time.Time) bool {
	return rec.LockedUntil != nil && !now.Before(*rec.LockedUntil)
}

func clearRecord(rec *model.AccountLockout) {
	rec.FailedAttempts = 0
	rec.LockedUntil = nil
	rec.LockoutReason = ""
}

// RecordFailedAttempt учитывает неудачную попытку. При достижении порога идентификатор блокируется.
func (s *LockoutService) RecordFailedAttempt(ctx context.Context, identity string) (LockoutInfo, error) {
	id, err := normalizeIdentity(identity)
	if err != nil {
		return LockoutInfo{}, err
	}

	rec, err := s.mutate(ctx, id, func(rec *model.AccountLockout, now time.Time) bool {
		if expired(rec, now) {
			clearRecord(rec)
		}
		rec.FailedAttempts++
		rec.LastAttemptAt = &now
		if rec.LockedUntil == nil && rec.FailedAttempts >= s.threshold {
			until := now.Add(s.duration)
			rec.LockedUntil = &until
			rec.LockoutReason = fmt.Sprintf("%d consecutive failed login attempts", rec.FailedAttempts)
		}
		return true
	})
	if err != nil {
		return LockoutInfo{}, err
	}

	info := s.info(rec, s.now())
	if info.Locked && rec.FailedAttempts == s.threshold {
		s.log.Warnw("account locked", "identity", id, "locked_until", rec.LockedUntil)
	}
	return info, nil
}

// IsLocked сообщает, заблокирован ли идентификатор сейчас.
func (s *LockoutService) IsLocked(ctx context.Context, identity string) (bool, error) {
	info, err := s.GetInfo(ctx, identity)
	if err != nil {
		return false, err
	}
	return info.Locked, nil
}

// GetInfo возвращает текущее состояние; истёкшая блокировка при этом сбрасывается.
func (s *LockoutService) GetInfo(ctx context.Context, identity string) (LockoutInfo, error) {
	id, err := normalizeIdentity(identity)
	if err != nil {
		return LockoutInfo{}, err
	}

	rec, err := s.store.Lockouts.Get(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.info(&model.AccountLockout{Identity: id}, s.now()), nil
	}
	if err != nil {
		return LockoutInfo{}, apperr.Internal(err, "load lockout state for %q", id)
	}
	if !expired(rec, s.now()) {
		return s.info(rec, s.now()), nil
	}

	// ленивое авто-разблокирование; перечитываем под мьютексом
	rec, err = s.mutate(ctx, id, func(rec *model.AccountLockout, now time.Time) bool {
		if !expired(rec, now) {
			return false
		}
		clearRecord(rec)
		return true
	})
	if err != nil {
		return LockoutInfo{}, err
	}
	s.log.Infow("lockout expired", "identity", id)
	return s.info(rec, s.now()), nil
}

// ClearFailedAttempts сбрасывает состояние после успешной аутентификации.
func (s *LockoutService) ClearFailedAttempts(ctx context.Context, identity string) error {
	id, err := normalizeIdentity(identity)
	if err != nil {
		return err
	}
	_, err = s.mutate(ctx, id, func(rec *model.AccountLockout, _ time.Time) bool {
		if rec.FailedAttempts == 0 && rec.LockedUntil == nil {
			return false
		}
		clearRecord(rec)
		return true
	})
	return err
}

// UnlockAccount — административный сброс, независимо от текущего состояния.
func (s *LockoutService) UnlockAccount(ctx context.Context, identity, reason string, actor *int64) error {
	id, err := normalizeIdentity(identity)
	if err != nil {
		return err
	}

	var before LockoutInfo
	_, err = s.mutate(ctx, id, func(rec *model.AccountLockout, now time.Time) bool {
		before = s.info(rec, now)
		clearRecord(rec)
		return true
	})
	if err != nil {
		return err
	}

	s.log.Infow("account unlocked", "identity", id, "reason", reason)
	s.audit.Record(ctx, actor, model.ActionUpdate, model.ResourceUser, id, AuditDetails{
		OldValue: map[string]any{"failed_attempts": before.FailedAttempts, "locked": before.Locked},
		NewValue: map[string]any{"failed_attempts": 0, "locked": false},
		Reason:   reason,
	})
	return nil
}

// ListLocked возвращает идентификаторы с активной блокировкой.
func (s *LockoutService) ListLocked(ctx context.Context) ([]LockoutInfo, error) {
	recs, err := s.store.Lockouts.ListLocked(ctx)
	if err != nil {
		return nil, apperr.Internal(err, "list locked identities")
	}
	now := s.now()
	out := make([]LockoutInfo, 0, len(recs))
	for i := range recs {
		if expired(&recs[i], now) {
			continue
		}
		out = append(out, s.info(&recs[i], now))
	}
	return out, nil
}

func (s *LockoutService) info(rec *model.AccountLockout, now time.Time) LockoutInfo {
	locked := rec.LockedUntil != nil && now.Before(*rec.LockedUntil)
	remaining := s.threshold - rec.FailedAttempts
	if remaining < 0 || locked {
		remaining = 0
	}
	return LockoutInfo{
		Identity:          rec.Identity,
		FailedAttempts:    rec.FailedAttempts,
		RemainingAttempts: remaining,
		Locked:            locked,
		LockedUntil:       rec.LockedUntil,
		Reason:            rec.LockoutReason,
	}
}
