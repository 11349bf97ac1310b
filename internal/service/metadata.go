package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"ArchiveKeeper/internal/apperr"
	"ArchiveKeeper/internal/hashing"
	"ArchiveKeeper/internal/model"
	"ArchiveKeeper/internal/repo"
)

// Значения по умолчанию описательных метаданных.
const (
	DefaultTitle    = "Untitled"
	DefaultCreator  = "Unknown"
	DefaultLanguage = "en"
)

// сколько раз RecordEvent повторяет чтение-изменение-запись при конфликте версий
const maxEventRetries = 5

// SystemAgent — агент событий сохранности, выполненных без пользователя.
const SystemAgent = "system"

// DescriptiveInput — частичные описательные метаданные. nil-поле не меняется.
type DescriptiveInput struct {
	Title       *string             `json:"title,omitempty"`
	Creator     *string             `json:"creator,omitempty"`
	Subject     *string             `json:"subject,omitempty"`
	Description *string             `json:"description,omitempty"`
	Publisher   *string             `json:"publisher,omitempty"`
	Type        *model.ResourceType `json:"type,omitempty"`
	Format      *string             `json:"format,omitempty"`
	Language    *string             `json:"language,omitempty"`
	Rights      *string             `json:"rights,omitempty"`
	Source      *string             `json:"source,omitempty"`
}

// CompositeView — файл вместе с обоими наборами метаданных.
type CompositeView struct {
	File         model.ArchivedFile          `json:"file"`
	Descriptive  *model.DescriptiveMetadata  `json:"descriptive,omitempty"`
	Preservation *model.PreservationMetadata `json:"preservation,omitempty"`
}

// MetadataService ведёт описательные и сохранностные метаданные архивных объектов.
type MetadataService struct {
	store *repo.Store
	repos *repo.Repositories
	audit *AuditService
	log   *zap.SugaredLogger
	now   func() time.Time
}

func NewMetadataService(store *repo.Store, audit *AuditService, log *zap.SugaredLogger) *MetadataService {
	return &MetadataService{
		store: store,
		repos: store.Repositories,
		audit: audit,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Tx возвращает копию сервиса, работающую внутри транзакции r.
func (s *MetadataService) Tx(r *repo.Repositories) *MetadataService {
	c := *s
	c.repos = r
	c.audit = s.audit.Tx(r)
	return &c
}

// AgentFor — идентификатор агента для событий сохранности.
func AgentFor(actor *int64) string {
	if actor == nil {
		return SystemAgent
	}
	return "user:" + strconv.FormatInt(*actor, 10)
}

// ObjectIdentifier — постоянный идентификатор объекта сохранности.
func ObjectIdentifier(fileID string) string {
	return "urn:uuid:" + fileID
}

// CreateDescriptive создаёт описательную запись, подставляя умолчания для незаданных полей.
func (s *MetadataService) CreateDescriptive(ctx context.Context, fileID string, in DescriptiveInput, mimeType string) (*model.DescriptiveMetadata, error) {
	if in.Type != nil && !in.Type.Valid() {
		return nil, apperr.Validation("unknown resource type %q", *in.Type)
	}

	d := &model.DescriptiveMetadata{
		FileID:   fileID,
		Title:    DefaultTitle,
		Creator:  DefaultCreator,
		Type:     model.TypeDocument,
		Format:   mimeType,
		Language: DefaultLanguage,
	}
	applyDescriptive(d, in)

	export, err := dublinCore(d)
	if err != nil {
		return nil, err
	}
	d.Export = export

	if err := s.repos.Metadata.CreateDescriptive(ctx, d); err != nil {
		if repo.IsDuplicate(err) {
			return nil, apperr.Conflict("descriptive metadata for %s already exists", fileID)
		}
		return nil, apperr.Internal(err, "create descriptive metadata")
	}
	return d, nil
}

// UpdateDescriptive меняет только переданные поля и пишет UPDATE в журнал — всё одной транзакцией.
// Открывает собственную транзакцию, поэтому вызывается на сервисе без Tx.
func (s *MetadataService) UpdateDescriptive(ctx context.Context, fileID string, in DescriptiveInput, actor *int64) (*model.DescriptiveMetadata, error) {
	if in.Type != nil && !in.Type.Valid() {
		return nil, apperr.Validation("unknown resource type %q", *in.Type)
	}

	var out *model.DescriptiveMetadata
	err := s.store.InTx(ctx, func(r *repo.Repositories) error {
		current, err := r.Metadata.GetDescriptive(ctx, fileID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("descriptive metadata for %s not found", fileID)
		}
		if err != nil {
			return apperr.Internal(err, "load descriptive metadata")
		}

		before := *current
		changes := applyDescriptive(current, in)
		if len(changes) == 0 {
			out = current
			return nil
		}

		export, err := dublinCore(current)
		if err != nil {
			return err
		}
		current.Export = export
		changes["export"] = export
		changes["updated_at"] = s.now()

		if err := r.Metadata.UpdateDescriptive(ctx, fileID, changes); err != nil {
			return apperr.Internal(err, "update descriptive metadata")
		}

		oldVals, newVals := diffDescriptive(&before, current, changes)
		if _, err := s.audit.Tx(r).Append(ctx, actor, model.ActionUpdate, model.ResourceMetadata, fileID, AuditDetails{
			OldValue: oldVals,
			NewValue: newVals,
			Reason:   "descriptive metadata update",
		}); err != nil {
			return err
		}
		out = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreatePreservation создаёт запись сохранности с единственным событием creation.
func (s *MetadataService) CreatePreservation(ctx context.Context, fileID, digest, mimeType string, actor *int64) (*model.PreservationMetadata, error) {
	if !hashing.IsDigest(digest) {
		return nil, apperr.Validation("digest must be a lowercase hex %s value", hashing.Algorithm)
	}
	now := s.now()
	p := &model.PreservationMetadata{
		FileID:           fileID,
		ObjectIdentifier: ObjectIdentifier(fileID),
		DigestAlgorithm:  hashing.Algorithm,
		DigestValue:      digest,
		Format:           mimeType,
		Level:            model.LevelFull,
		Events: datatypes.JSONSlice[model.PreservationEvent]{{
			Type:      model.EventCreation,
			Timestamp: now,
			Detail:    fmt.Sprintf("object registered, %s %s", hashing.Algorithm, digest),
			Agent:     AgentFor(actor),
		}},
		LockVersion: 1,
	}
	if err := s.repos.Metadata.CreatePreservation(ctx, p); err != nil {
		if repo.IsDuplicate(err) {
			return nil, apperr.Conflict("preservation metadata for %s already exists", fileID)
		}
		return nil, apperr.Internal(err, "create preservation metadata")
	}
	return p, nil
}

// RecordEvent дописывает событие в историю сохранности.
// Конкурентные дописывания не теряются: запись обновляется только при совпадении lock_version.
func (s *MetadataService) RecordEvent(ctx context.Context, fileID string, eventType model.EventType, detail, agent string) error {
	if !eventType.Valid() {
		return apperr.Validation("unknown preservation event type %q", eventType)
	}
	_, err := s.appendEvent(ctx, fileID, func(p *model.PreservationMetadata, now time.Time) (model.PreservationEvent, map[string]any) {
		return model.PreservationEvent{Type: eventType, Timestamp: now, Detail: detail, Agent: agent}, nil
	})
	return err
}

// ValidateFixity сравнивает digest с сохранённым и всегда оставляет событие validation.
func (s *MetadataService) ValidateFixity(ctx context.Context, fileID, currentDigest, agent string) (bool, error) {
	var valid bool
	_, err := s.appendEvent(ctx, fileID, func(p *model.PreservationMetadata, now time.Time) (model.PreservationEvent, map[string]any) {
		valid = p.DigestValue == currentDigest
		ev := model.PreservationEvent{Type: model.EventValidation, Timestamp: now, Agent: agent}
		if valid {
			ev.Detail = fmt.Sprintf("fixity check passed: %s %s", p.DigestAlgorithm, currentDigest)
			return ev, map[string]any{"digest_validated_at": now}
		}
		ev.Detail = fmt.Sprintf("fixity check FAILED: expected %s, actual %s", p.DigestValue, currentDigest)
		return ev, nil
	})
	if err != nil {
		return false, err
	}
	return valid, nil
}

// RecordVersionChange обновляет основной digest после новой версии и дописывает событие modification.
func (s *MetadataService) RecordVersionChange(ctx context.Context, fileID, newDigest, detail, agent string) error {
	if !hashing.IsDigest(newDigest) {
		return apperr.Validation("digest must be a lowercase hex %s value", hashing.Algorithm)
	}
	_, err := s.appendEvent(ctx, fileID, func(p *model.PreservationMetadata, now time.Time) (model.PreservationEvent, map[string]any) {
		ev := model.PreservationEvent{Type: model.EventModification, Timestamp: now, Detail: detail, Agent: agent}
		return ev, map[string]any{"digest_value": newDigest, "digest_validated_at": nil}
	})
	return err
}

// appendEvent — цикл оптимистической блокировки: прочитать, дописать, записать при неизменной версии.
func (s *MetadataService) appendEvent(
	ctx context.Context,
	fileID string,
	build func(p *model.PreservationMetadata, now time.Time) (model.PreservationEvent, map[string]any),
) (*model.PreservationMetadata, error) {
	for attempt := 1; attempt <= maxEventRetries; attempt++ {
		p, err := s.repos.Metadata.GetPreservation(ctx, fileID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("preservation metadata for %s not found", fileID)
		}
		if err != nil {
			return nil, apperr.Internal(err, "load preservation metadata")
		}

		now := s.now()
		ev, extra := build(p, now)

		events := make(datatypes.JSONSlice[model.PreservationEvent], 0, len(p.Events)+1)
		events = append(events, p.Events...)
		events = append(events, ev)

		updates := map[string]any{"events": events, "updated_at": now}
		for k, v := range extra {
			updates[k] = v
		}

		next, err := s.repos.Metadata.UpdatePreservationWithVersion(ctx, fileID, p.LockVersion, updates)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Debugw("preservation version conflict, retrying", "file_id", fileID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, apperr.Internal(err, "update preservation metadata")
		}
		p.Events = events
		p.LockVersion = next
		return p, nil
	}
	return nil, apperr.Conflict("preservation metadata for %s changed concurrently, giving up after %d attempts", fileID, maxEventRetries)
}

// GetWithMetadata собирает файл и оба набора метаданных. Нет файла — (nil, nil).
func (s *MetadataService) GetWithMetadata(ctx context.Context, fileID string) (*CompositeView, error) {
	f, err := s.repos.Files.GetByID(ctx, fileID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internal(err, "load file")
	}

	view := &CompositeView{File: *f}
	if d, err := s.repos.Metadata.GetDescriptive(ctx, fileID); err == nil {
		view.Descriptive = d
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(err, "load descriptive metadata")
	}
	if p, err := s.repos.Metadata.GetPreservation(ctx, fileID); err == nil {
		view.Preservation = p
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(err, "load preservation metadata")
	}
	return view, nil
}

// GetPreservation возвращает запись сохранности или NotFound.
func (s *MetadataService) GetPreservation(ctx context.Context, fileID string) (*model.PreservationMetadata, error) {
	p, err := s.repos.Metadata.GetPreservation(ctx, fileID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("preservation metadata for %s not found", fileID)
	}
	if err != nil {
		return nil, apperr.Internal(err, "load preservation metadata")
	}
	return p, nil
}

// applyDescriptive переносит заданные поля в d и возвращает их как колонки для UPDATE.
func applyDescriptive(d *model.DescriptiveMetadata, in DescriptiveInput) map[string]any {
	changes := map[string]any{}
	set := func(col string, dst *string, src *string) {
		if src == nil {
			return
		}
		*dst = strings.TrimSpace(*src)
		changes[col] = *dst
	}
	set("title", &d.Title, in.Title)
	set("creator", &d.Creator, in.Creator)
	set("subject", &d.Subject, in.Subject)
	set("description", &d.Description, in.Description)
	set("publisher", &d.Publisher, in.Publisher)
	set("format", &d.Format, in.Format)
	set("language", &d.Language, in.Language)
	set("rights", &d.Rights, in.Rights)
	set("source", &d.Source, in.Source)
	if in.Type != nil {
		d.Type = *in.Type
		changes["type"] = d.Type
	}

	// пустые обязательные поля возвращаются к умолчаниям
	if d.Title == "" {
		d.Title = DefaultTitle
		if _, ok := changes["title"]; ok {
			changes["title"] = d.Title
		}
	}
	if d.Creator == "" {
		d.Creator = DefaultCreator
		if _, ok := changes["creator"]; ok {
			changes["creator"] = d.Creator
		}
	}
	if d.Language == "" {
		d.Language = DefaultLanguage
		if _, ok := changes["language"]; ok {
			changes["language"] = d.Language
		}
	}
	return changes
}

func diffDescriptive(before, after *model.DescriptiveMetadata, changes map[string]any) (map[string]any, map[string]any) {
	beforeCols := descriptiveColumns(before)
	afterCols := descriptiveColumns(after)
	oldVals, newVals := map[string]any{}, map[string]any{}
	for col := range changes {
		if col == "export" || col == "updated_at" {
			continue
		}
		oldVals[col] = beforeCols[col]
		newVals[col] = afterCols[col]
	}
	return oldVals, newVals
}

func descriptiveColumns(d *model.DescriptiveMetadata) map[string]any {
	return map[string]any{
		"title":       d.Title,
		"creator":     d.Creator,
		"subject":     d.Subject,
		"description": d.Description,
		"publisher":   d.Publisher,
		"type":        string(d.Type),
		"format":      d.Format,
		"language":    d.Language,
		"rights":      d.Rights,
		"source":      d.Source,
	}
}

// dublinCore строит каноническое представление записи: ключи dc:*, отсортированы, пустые опущены.
func dublinCore(d *model.DescriptiveMetadata) (datatypes.JSON, error) {
	doc := map[string]string{"dc:identifier": ObjectIdentifier(d.FileID)}
	for col, v := range descriptiveColumns(d) {
		if s, _ := v.(string); s != "" {
			doc["dc:"+col] = s
		}
	}
	// encoding/json сортирует ключи map, что и даёт каноническую форму
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, apperr.Internal(err, "encode dublin core export")
	}
	return datatypes.JSON(raw), nil
}
