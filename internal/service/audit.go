package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"ArchiveKeeper/internal/apperr"
	"ArchiveKeeper/internal/crypto"
	"ArchiveKeeper/internal/model"
	"ArchiveKeeper/internal/repo"
)

const (
	defaultLedgerLimit = 50
	maxLedgerLimit     = 500
)

// piiFields — поля снимков пользователя, которые в журнал попадают только зашифрованными.
var piiFields = []string{"email"}

// AuditDetails — необязательная часть записи журнала.
// Запись считается успешной, если ErrorMessage пуст.
type AuditDetails struct {
	OldValue     any
	NewValue     any
	Reason       string
	IPAddress    string
	UserAgent    string
	ErrorMessage string
}

// AuditCriteria — фильтр для Search.
type AuditCriteria struct {
	ActorID      *int64
	Action       model.AuditAction
	ResourceType model.AuditResource
	ResourceID   string
	Success      *bool
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

// AuditService — журнал происхождения (ledger). Только добавление и чтение.
//
// Две политики записи различаются по месту вызова:
//   - Append: ошибка возвращается вызывающему; внутри транзакции (Tx) откатывает всю операцию;
//   - Record: запись о побочном событии, ошибка только логируется.
type AuditService struct {
	repo repo.AuditRepository
	enc  *crypto.Service
	log  *zap.SugaredLogger
	now  func() time.Time
}

// NewAuditService создаёт журнал. enc может быть nil — тогда снимки пользователей пишутся без шифрования полей.
func NewAuditService(r repo.AuditRepository, enc *crypto.Service, log *zap.SugaredLogger) *AuditService {
	return &AuditService{
		repo: r,
		enc:  enc,
		log:  log,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Tx возвращает копию журнала, пишущую в транзакцию r.
func (s *AuditService) Tx(r *repo.Repositories) *AuditService {
	c := *s
	c.repo = r.Audit
	return &c
}

// Append добавляет одну неизменяемую запись.
func (s *AuditService) Append(ctx context.Context, actor *int64, action model.AuditAction, resType model.AuditResource, resID string, d AuditDetails) (*model.AuditLog, error) {
	if !action.Valid() {
		return nil, apperr.Validation("unknown audit action %q", action)
	}
	if !resType.Valid() {
		return nil, apperr.Validation("unknown resource type %q", resType)
	}
	if resID == "" {
		return nil, apperr.Validation("resource id is required")
	}

	oldVal, err := s.snapshot(resType, d.OldValue)
	if err != nil {
		return nil, err
	}
	newVal, err := s.snapshot(resType, d.NewValue)
	if err != nil {
		return nil, err
	}

	entry := &model.AuditLog{
		ActorID:      actor,
		Action:       action,
		ResourceType: resType,
		ResourceID:   resID,
		OldValue:     oldVal,
		NewValue:     newVal,
		Reason:       d.Reason,
		IPAddress:    d.IPAddress,
		UserAgent:    d.UserAgent,
		Success:      d.ErrorMessage == "",
		ErrorMessage: d.ErrorMessage,
		CreatedAt:    s.now(),
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, apperr.Internal(err, "append audit entry")
	}
	return entry, nil
}

// Record — best-effort запись: ошибка логируется и не возвращается.
func (s *AuditService) Record(ctx context.Context, actor *int64, action model.AuditAction, resType model.AuditResource, resID string, d AuditDetails) {
	if _, err := s.Append(ctx, actor, action, resType, resID, d); err != nil {
		s.log.Warnw("audit append failed",
			"action", action,
			"resource_type", resType,
			"resource_id", resID,
			"error", err,
		)
	}
}

func (s *AuditService) QueryByResource(ctx context.Context, resourceID string, limit, offset int) ([]model.AuditLog, int64, error) {
	return s.Search(ctx, AuditCriteria{ResourceID: resourceID, Limit: limit, Offset: offset})
}

func (s *AuditService) QueryByActor(ctx context.Context, actorID int64, limit, offset int) ([]model.AuditLog, int64, error) {
	return s.Search(ctx, AuditCriteria{ActorID: &actorID, Limit: limit, Offset: offset})
}

func (s *AuditService) QueryRecent(ctx context.Context, limit, offset int) ([]model.AuditLog, int64, error) {
	return s.Search(ctx, AuditCriteria{Limit: limit, Offset: offset})
}

// Search возвращает записи по фильтру от новых к старым и общее число совпадений.
func (s *AuditService) Search(ctx context.Context, c AuditCriteria) ([]model.AuditLog, int64, error) {
	if c.Action != "" && !c.Action.Valid() {
		return nil, 0, apperr.Validation("unknown audit action %q", c.Action)
	}
	if c.ResourceType != "" && !c.ResourceType.Valid() {
		return nil, 0, apperr.Validation("unknown resource type %q", c.ResourceType)
	}
	if c.Offset < 0 {
		c.Offset = 0
	}

	entries, total, err := s.repo.List(ctx, repo.AuditFilter{
		ActorID:      c.ActorID,
		Action:       c.Action,
		ResourceType: c.ResourceType,
		ResourceID:   c.ResourceID,
		Success:      c.Success,
		From:         c.From,
		To:           c.To,
		Limit:        clampLimit(c.Limit, defaultLedgerLimit, maxLedgerLimit),
		Offset:       c.Offset,
	})
	if err != nil {
		return nil, 0, apperr.Internal(err, "query audit log")
	}
	return entries, total, nil
}

// snapshot сериализует значение для колонки old/new_value.
// У снимков пользователя PII-поля шифруются.
func (s *AuditService) snapshot(resType model.AuditResource, v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	if resType == model.ResourceUser && s.enc != nil {
		if m, ok := v.(map[string]any); ok {
			enc, err := s.enc.EncryptFields(m, piiFields...)
			if err != nil {
				return nil, err
			}
			v = enc
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, apperr.Validation("audit snapshot is not serializable: %v", err)
	}
	return datatypes.JSON(raw), nil
}

// clampLimit нормализует размер страницы: <=0 — значение по умолчанию, сверху ограничение max.
func clampLimit(limit, def, max int) int {
	switch {
	case limit <= 0:
		return def
	case limit > max:
		return max
	}
	return limit
}
