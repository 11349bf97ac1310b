package service

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"ArchiveKeeper/internal/apperr"
	"ArchiveKeeper/internal/hashing"
	"ArchiveKeeper/internal/model"
	"ArchiveKeeper/internal/repo"
)

// Размер страницы поиска.
const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
)

const defaultMimeType = "application/octet-stream"

// ClientInfo — сетевой контекст запроса для журнала.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// RegisterInput — параметры регистрации нового содержимого.
// Digest и Size вычисляются по файлу, если не заданы.
type RegisterInput struct {
	Path        string
	Filename    string
	Digest      string
	Size        int64
	MimeType    string
	Category    string
	OwnerID     *int64
	AccessLevel model.AccessLevel
	Descriptive DescriptiveInput
	Client      ClientInfo
}

// VersionInput — параметры новой версии существующего файла.
type VersionInput struct {
	FileID  string
	Path    string
	Digest  string
	Size    int64
	Actor   *int64
	Summary string
	Client  ClientInfo
}

// SearchQuery — поиск по каталогу. Неизвестный SortBy трактуется как relevance.
type SearchQuery struct {
	Text        string
	Category    string
	Creator     string
	AccessLevel model.AccessLevel
	DateFrom    *time.Time
	DateTo      *time.Time
	SortBy      string
	SortOrder   string
	Limit       int
	Offset      int
}

// SearchHit — элемент выдачи поиска.
type SearchHit struct {
	File        model.ArchivedFile `json:"file"`
	Title       string             `json:"title,omitempty"`
	Creator     string             `json:"creator,omitempty"`
	Description string             `json:"description,omitempty"`
	Score       float64            `json:"score"`
}

// SearchResult — страница выдачи.
type SearchResult struct {
	Files   []SearchHit   `json:"files"`
	Total   int64         `json:"total"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
	Elapsed time.Duration `json:"elapsed_ns"`
}

// FileStatistics — агрегаты по каталогу.
type FileStatistics struct {
	TotalFiles   int64   `json:"total_files"`
	Categories   int64   `json:"categories"`
	TotalSize    int64   `json:"total_size"`
	AvgRating    float64 `json:"avg_rating"`
	Contributors int64   `json:"contributors"`
}

// ArchiveService — регистрация, версии, поиск и мягкое удаление содержимого архива.
type ArchiveService struct {
	store    *repo.Store
	content  *ContentStore
	metadata *MetadataService
	audit    *AuditService
	log      *zap.SugaredLogger
	now      func() time.Time
	locks    *keyedMutex
}

func NewArchiveService(store *repo.Store, content *ContentStore, metadata *MetadataService, audit *AuditService, log *zap.SugaredLogger) *ArchiveService {
	return &ArchiveService{
		store:    store,
		content:  content,
		metadata: metadata,
		audit:    audit,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		locks:    newKeyedMutex(),
	}
}

// resolveContent возвращает digest и размер: переданные значения проверяются,
// отсутствующие вычисляются по содержимому.
func (s *ArchiveService) resolveContent(path, digest string, size int64) (string, int64, error) {
	if strings.TrimSpace(path) == "" {
		return "", 0, apperr.Validation("storage path is required")
	}
	if size < 0 {
		return "", 0, apperr.Validation("size must not be negative")
	}
	if _, err := s.content.Resolve(path); err != nil {
		return "", 0, err
	}

	digest = strings.TrimSpace(digest)
	if digest == "" {
		sum, n, err := s.content.Digest(path)
		if err != nil {
			return "", 0, err
		}
		if size == 0 {
			size = n
		}
		return sum, size, nil
	}

	digest = strings.ToLower(digest)
	if !hashing.IsDigest(digest) {
		return "", 0, apperr.Validation("digest must be a hex %s value", hashing.Algorithm)
	}
	if size == 0 {
		// содержимое может ещё не лежать в хранилище — тогда размер остаётся нулевым
		if n, err := s.content.Size(path); err == nil {
			size = n
		}
	}
	return digest, size, nil
}

func detectMimeType(filename string) string {
	if t := mime.TypeByExtension(filepath.Ext(filename)); t != "" {
		if mt, _, err := mime.ParseMediaType(t); err == nil {
			return mt
		}
		return t
	}
	return defaultMimeType
}

func fileSnapshot(f *model.ArchivedFile) map[string]any {
	return map[string]any{
		"filename":        f.Filename,
		"storage_path":    f.StoragePath,
		"file_hash":       f.FileHash,
		"size":            f.Size,
		"current_version": f.CurrentVersion,
		"access_level":    f.AccessLevel,
		"is_accessible":   f.IsAccessible,
		"deleted":         f.Deleted,
	}
}

// RegisterFile регистрирует содержимое одной транзакцией: файл, версия 1,
// описательные и сохранностные метаданные, запись CREATE в журнале.
func (s *ArchiveService) RegisterFile(ctx context.Context, in RegisterInput) (*model.ArchivedFile, error) {
	digest, size, err := s.resolveContent(in.Path, in.Digest, in.Size)
	if err != nil {
		return nil, err
	}

	access := in.AccessLevel
	if access == "" {
		access = model.AccessInternal
	}
	if !access.Valid() {
		return nil, apperr.Validation("unknown access level %q", access)
	}

	filename := strings.TrimSpace(in.Filename)
	if filename == "" {
		filename = filepath.Base(in.Path)
	}
	mimeType := strings.TrimSpace(in.MimeType)
	if mimeType == "" {
		mimeType = detectMimeType(filename)
	}

	now := s.now()
	f := &model.ArchivedFile{
		ID:             uuid.NewString(),
		Filename:       filename,
		StoragePath:    in.Path,
		FileHash:       digest,
		MimeType:       mimeType,
		Size:           size,
		Category:       strings.TrimSpace(in.Category),
		OwnerID:        in.OwnerID,
		CurrentVersion: 1,
		IsAccessible:   true,
		AccessLevel:    access,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.store.InTx(ctx, func(r *repo.Repositories) error {
		exists, err := r.Files.ExistsByHash(ctx, digest)
		if err != nil {
			return apperr.Internal(err, "check digest")
		}
		if exists {
			return apperr.Conflict("content with digest %s is already registered", digest)
		}
		if err := r.Files.Create(ctx, f); err != nil {
			if repo.IsDuplicate(err) {
				return apperr.Conflict("content with digest %s is already registered", digest)
			}
			return apperr.Internal(err, "insert file")
		}

		if err := r.Versions.Create(ctx, &model.FileVersion{
			FileID:         f.ID,
			VersionNumber:  1,
			FileHash:       digest,
			Size:           size,
			StoragePath:    in.Path,
			CreatedBy:      in.OwnerID,
			ChangeSummary:  "initial version",
			ChangeMetadata: datatypes.NewJSONType(model.VersionChange{SizeDelta: size}),
			CreatedAt:      now,
		}); err != nil {
			return apperr.Internal(err, "insert initial version")
		}

		meta := s.metadata.Tx(r)
		if _, err := meta.CreateDescriptive(ctx, f.ID, in.Descriptive, mimeType); err != nil {
			return err
		}
		if _, err := meta.CreatePreservation(ctx, f.ID, digest, mimeType, in.OwnerID); err != nil {
			return err
		}

		_, err = s.audit.Tx(r).Append(ctx, in.OwnerID, model.ActionCreate, model.ResourceFile, f.ID, AuditDetails{
			NewValue:  fileSnapshot(f),
			IPAddress: in.Client.IPAddress,
			UserAgent: in.Client.UserAgent,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("file registered", "file_id", f.ID, "digest", digest, "size", size)
	return f, nil
}

// CreateVersion добавляет неизменяемую версию и переключает файл на новое содержимое.
// Создание версий одного файла сериализуется, номера строго растут.
func (s *ArchiveService) CreateVersion(ctx context.Context, in VersionInput) (*model.FileVersion, error) {
	if strings.TrimSpace(in.FileID) == "" {
		return nil, apperr.Validation("file id is required")
	}
	digest, size, err := s.resolveContent(in.Path, in.Digest, in.Size)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(in.FileID)
	defer unlock()

	var v *model.FileVersion
	err = s.store.InTx(ctx, func(r *repo.Repositories) error {
		f, err := r.Files.GetByIDForUpdate(ctx, in.FileID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("file %s not found", in.FileID)
		}
		if err != nil {
			return apperr.Internal(err, "load file")
		}
		if f.Deleted {
			return apperr.Conflict("file %s is deleted", in.FileID)
		}
		if f.FileHash == digest {
			return apperr.Validation("new version is identical to the current content")
		}
		exists, err := r.Files.ExistsByHash(ctx, digest)
		if err != nil {
			return apperr.Internal(err, "check digest")
		}
		if exists {
			return apperr.Conflict("content with digest %s is already registered", digest)
		}

		before := fileSnapshot(f)
		now := s.now()
		next := f.CurrentVersion + 1
		v = &model.FileVersion{
			FileID:        f.ID,
			VersionNumber: next,
			FileHash:      digest,
			Size:          size,
			StoragePath:   in.Path,
			CreatedBy:     in.Actor,
			ChangeSummary: strings.TrimSpace(in.Summary),
			ChangeMetadata: datatypes.NewJSONType(model.VersionChange{
				PreviousHash: f.FileHash,
				SizeDelta:    size - f.Size,
			}),
			CreatedAt: now,
		}
		if err := r.Versions.Create(ctx, v); err != nil {
			if repo.IsDuplicate(err) {
				return apperr.Conflict("version %d of file %s already exists", next, f.ID)
			}
			return apperr.Internal(err, "insert version")
		}

		if err := r.Files.Update(ctx, f.ID, map[string]any{
			"storage_path":    in.Path,
			"file_hash":       digest,
			"size":            size,
			"current_version": next,
			"updated_at":      now,
		}); err != nil {
			if repo.IsDuplicate(err) {
				return apperr.Conflict("content with digest %s is already registered", digest)
			}
			return apperr.Internal(err, "update file")
		}
		f.StoragePath, f.FileHash, f.Size, f.CurrentVersion = in.Path, digest, size, next

		detail := fmt.Sprintf("version %d created, previous %s %s", next, hashing.Algorithm, v.ChangeMetadata.Data().PreviousHash)
		if v.ChangeSummary != "" {
			detail += ": " + v.ChangeSummary
		}
		if err := s.metadata.Tx(r).RecordVersionChange(ctx, f.ID, digest, detail, AgentFor(in.Actor)); err != nil {
			return err
		}

		_, err = s.audit.Tx(r).Append(ctx, in.Actor, model.ActionUpdate, model.ResourceFile, f.ID, AuditDetails{
			OldValue:  before,
			NewValue:  fileSnapshot(f),
			Reason:    v.ChangeSummary,
			IPAddress: in.Client.IPAddress,
			UserAgent: in.Client.UserAgent,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("version created", "file_id", in.FileID, "version", v.VersionNumber, "digest", digest)
	return v, nil
}

// SearchFiles — поиск с ранжированием по релевантности, фильтрами и сортировкой.
func (s *ArchiveService) SearchFiles(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	started := time.Now()

	if q.AccessLevel != "" && !q.AccessLevel.Valid() {
		return nil, apperr.Validation("unknown access level %q", q.AccessLevel)
	}
	if q.DateFrom != nil && q.DateTo != nil && q.DateFrom.After(*q.DateTo) {
		return nil, apperr.Validation("date_from must not be after date_to")
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	limit := clampLimit(q.Limit, DefaultSearchLimit, MaxSearchLimit)

	sortBy := strings.ToLower(strings.TrimSpace(q.SortBy))
	switch sortBy {
	case repo.SortDate, repo.SortTitle:
	default:
		sortBy = repo.SortRelevance
	}
	var desc bool
	switch strings.ToLower(q.SortOrder) {
	case "asc":
		desc = false
	case "desc":
		desc = true
	default:
		desc = sortBy != repo.SortTitle
	}

	rows, total, err := s.store.Files.Search(ctx, repo.SearchQuery{
		Text:        q.Text,
		Category:    q.Category,
		Creator:     q.Creator,
		AccessLevel: q.AccessLevel,
		DateFrom:    q.DateFrom,
		DateTo:      q.DateTo,
		SortBy:      sortBy,
		SortDesc:    desc,
		Limit:       limit,
		Offset:      q.Offset,
	})
	if err != nil {
		return nil, apperr.Internal(err, "search files")
	}

	hits := make([]SearchHit, 0, len(rows))
	for _, row := range rows {
		h := SearchHit{File: row.File, Score: row.Score}
		if row.Descriptive != nil {
			h.Title = row.Descriptive.Title
			h.Creator = row.Descriptive.Creator
			h.Description = row.Descriptive.Description
		}
		hits = append(hits, h)
	}
	return &SearchResult{
		Files:   hits,
		Total:   total,
		Limit:   limit,
		Offset:  q.Offset,
		Elapsed: time.Since(started),
	}, nil
}

// DeleteFile — мягкое удаление: строка остаётся, ставится флаг и время. Пишет DELETE в журнал.
func (s *ArchiveService) DeleteFile(ctx context.Context, fileID string, actor *int64, reason string, client ClientInfo) error {
	return s.toggleDeleted(ctx, fileID, true, actor, reason, client)
}

// RestoreFile снимает флаг удаления и, для симметрии с удалением, пишет UPDATE в журнал.
func (s *ArchiveService) RestoreFile(ctx context.Context, fileID string, actor *int64, client ClientInfo) error {
	return s.toggleDeleted(ctx, fileID, false, actor, "restore", client)
}

func (s *ArchiveService) toggleDeleted(ctx context.Context, fileID string, deleted bool, actor *int64, reason string, client ClientInfo) error {
	unlock := s.locks.Lock(fileID)
	defer unlock()

	err := s.store.InTx(ctx, func(r *repo.Repositories) error {
		f, err := r.Files.GetByIDForUpdate(ctx, fileID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("file %s not found", fileID)
		}
		if err != nil {
			return apperr.Internal(err, "load file")
		}
		if f.Deleted == deleted {
			if deleted {
				return apperr.Conflict("file %s is already deleted", fileID)
			}
			return apperr.Conflict("file %s is not deleted", fileID)
		}

		now := s.now()
		updates := map[string]any{"deleted": deleted, "updated_at": now}
		action := model.ActionDelete
		if deleted {
			updates["deleted_at"] = now
		} else {
			updates["deleted_at"] = nil
			action = model.ActionUpdate
		}
		if err := r.Files.Update(ctx, fileID, updates); err != nil {
			return apperr.Internal(err, "update file")
		}

		_, err = s.audit.Tx(r).Append(ctx, actor, action, model.ResourceFile, fileID, AuditDetails{
			OldValue:  map[string]any{"deleted": f.Deleted},
			NewValue:  map[string]any{"deleted": deleted},
			Reason:    reason,
			IPAddress: client.IPAddress,
			UserAgent: client.UserAgent,
		})
		return err
	})
	if err != nil {
		return err
	}
	s.log.Infow("file delete flag changed", "file_id", fileID, "deleted", deleted)
	return nil
}

// GetFile возвращает файл (в том числе удалённый) и пишет READ в журнал без влияния на результат.
func (s *ArchiveService) GetFile(ctx context.Context, fileID string, actor *int64, client ClientInfo) (*CompositeView, error) {
	view, err := s.metadata.GetWithMetadata(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if view == nil {
		return nil, apperr.NotFound("file %s not found", fileID)
	}
	s.audit.Record(ctx, actor, model.ActionRead, model.ResourceFile, fileID, AuditDetails{
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})
	return view, nil
}

// RecordDownload фиксирует выдачу содержимого: DOWNLOAD в журнале и событие access. Оба — best-effort.
func (s *ArchiveService) RecordDownload(ctx context.Context, fileID string, actor *int64, client ClientInfo) error {
	f, err := s.store.Files.GetByID(ctx, fileID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("file %s not found", fileID)
	}
	if err != nil {
		return apperr.Internal(err, "load file")
	}
	if f.Deleted || !f.IsAccessible {
		return apperr.Conflict("file %s is not accessible", fileID)
	}

	s.audit.Record(ctx, actor, model.ActionDownload, model.ResourceFile, fileID, AuditDetails{
		NewValue:  map[string]any{"version": f.CurrentVersion, "file_hash": f.FileHash},
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
	})
	detail := fmt.Sprintf("content downloaded, version %d", f.CurrentVersion)
	if err := s.metadata.RecordEvent(ctx, fileID, model.EventAccess, detail, AgentFor(actor)); err != nil {
		s.log.Warnw("preservation access event failed", "file_id", fileID, "error", err)
	}
	return nil
}

// ListVersions — история версий по возрастанию номера.
func (s *ArchiveService) ListVersions(ctx context.Context, fileID string) ([]model.FileVersion, error) {
	if _, err := s.store.Files.GetByID(ctx, fileID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("file %s not found", fileID)
		}
		return nil, apperr.Internal(err, "load file")
	}
	versions, err := s.store.Versions.ListByFile(ctx, fileID)
	if err != nil {
		return nil, apperr.Internal(err, "list versions")
	}
	return versions, nil
}

func (s *ArchiveService) GetFileStatistics(ctx context.Context) (FileStatistics, error) {
	st, err := s.store.Files.Stats(ctx)
	if err != nil {
		return FileStatistics{}, apperr.Internal(err, "file statistics")
	}
	return FileStatistics{
		TotalFiles:   st.TotalFiles,
		Categories:   st.Categories,
		TotalSize:    st.TotalSize,
		AvgRating:    st.AvgRating,
		Contributors: st.Contributors,
	}, nil
}
