package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ArchiveKeeper/internal/apperr"
	"ArchiveKeeper/internal/middleware"
	"ArchiveKeeper/internal/model"
	"ArchiveKeeper/internal/service"
)

// FileHandler — операции с архивными объектами.
type FileHandler struct {
	Archive  *service.ArchiveService
	Metadata *service.MetadataService
	Fixity   *service.FixityService
	Content  *service.ContentStore
	Logger   *zap.SugaredLogger
}

func NewFileHandler(archive *service.ArchiveService, metadata *service.MetadataService, fixity *service.FixityService, content *service.ContentStore, logger *zap.SugaredLogger) *FileHandler {
	return &FileHandler{Archive: archive, Metadata: metadata, Fixity: fixity, Content: content, Logger: logger}
}

// RegisterRequest — регистрация содержимого, уже лежащего в хранилище.
type RegisterRequest struct {
	Path        string                   `json:"path"`
	Filename    string                   `json:"filename,omitempty"`
	Digest      string                   `json:"digest,omitempty"`
	Size        int64                    `json:"size,omitempty"`
	MimeType    string                   `json:"mime_type,omitempty"`
	Category    string                   `json:"category,omitempty"`
	AccessLevel model.AccessLevel        `json:"access_level,omitempty"`
	Descriptive service.DescriptiveInput `json:"descriptive"`
}

// VersionRequest — новая версия существующего файла.
type VersionRequest struct {
	Path    string `json:"path"`
	Digest  string `json:"digest,omitempty"`
	Size    int64  `json:"size,omitempty"`
	Summary string `json:"summary,omitempty"`
}

type deleteRequest struct {
	Reason string `json:"reason"`
}

func actorFrom(r *http.Request) *int64 {
	if id, ok := middleware.GetUserIDFromContext(r.Context()); ok {
		return &id
	}
	return nil
}

func (h *FileHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Logger, "RegisterFile", err)
		return
	}

	f, err := h.Archive.RegisterFile(r.Context(), service.RegisterInput{
		Path:        req.Path,
		Filename:    req.Filename,
		Digest:      req.Digest,
		Size:        req.Size,
		MimeType:    req.MimeType,
		Category:    req.Category,
		OwnerID:     actorFrom(r),
		AccessLevel: req.AccessLevel,
		Descriptive: req.Descriptive,
		Client:      clientInfo(r),
	})
	if err != nil {
		writeError(w, h.Logger, "RegisterFile", err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.Archive.GetFile(r.Context(), chi.URLParam(r, "id"), actorFrom(r), clientInfo(r))
	if err != nil {
		writeError(w, h.Logger, "GetFile", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Download отдаёт содержимое текущей версии и фиксирует выдачу.
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Archive.RecordDownload(r.Context(), id, actorFrom(r), clientInfo(r)); err != nil {
		writeError(w, h.Logger, "Download", err)
		return
	}
	view, err := h.Metadata.GetWithMetadata(r.Context(), id)
	if err == nil && view == nil {
		err = apperr.NotFound("file %s not found", id)
	}
	if err != nil {
		writeError(w, h.Logger, "Download", err)
		return
	}
	f, err := h.Content.Open(view.File.StoragePath)
	if err != nil {
		writeError(w, h.Logger, "Download", err)
		return
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		writeError(w, h.Logger, "Download", err)
		return
	}
	if view.File.MimeType != "" {
		w.Header().Set("Content-Type", view.File.MimeType)
	}
	http.ServeContent(w, r, view.File.Filename, fi.ModTime(), f)
}

func (h *FileHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sq := service.SearchQuery{
		Text:        q.Get("q"),
		Category:    q.Get("category"),
		Creator:     q.Get("creator"),
		AccessLevel: model.AccessLevel(q.Get("access_level")),
		SortBy:      q.Get("sort_by"),
		SortOrder:   q.Get("sort_order"),
	}
	var err error
	if sq.Limit, err = queryInt(r, "limit"); err == nil {
		if sq.Offset, err = queryInt(r, "offset"); err == nil {
			if sq.DateFrom, err = queryTime(r, "date_from"); err == nil {
				sq.DateTo, err = queryTime(r, "date_to")
			}
		}
	}
	if err != nil {
		writeError(w, h.Logger, "SearchFiles", err)
		return
	}

	res, err := h.Archive.SearchFiles(r.Context(), sq)
	if err != nil {
		writeError(w, h.Logger, "SearchFiles", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *FileHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Archive.GetFileStatistics(r.Context())
	if err != nil {
		writeError(w, h.Logger, "FileStats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *FileHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.Archive.ListVersions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Logger, "ListVersions", err)
		return
	}
	if versions == nil {
		versions = []model.FileVersion{}
	}
	writeJSON(w, http.StatusOK, versions)
}

func (h *FileHandler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	var req VersionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Logger, "CreateVersion", err)
		return
	}
	v, err := h.Archive.CreateVersion(r.Context(), service.VersionInput{
		FileID:  chi.URLParam(r, "id"),
		Path:    req.Path,
		Digest:  req.Digest,
		Size:    req.Size,
		Actor:   actorFrom(r),
		Summary: req.Summary,
		Client:  clientInfo(r),
	})
	if err != nil {
		writeError(w, h.Logger, "CreateVersion", err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, h.Logger, "DeleteFile", err)
			return
		}
	}
	if err := h.Archive.DeleteFile(r.Context(), chi.URLParam(r, "id"), actorFrom(r), req.Reason, clientInfo(r)); err != nil {
		writeError(w, h.Logger, "DeleteFile", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FileHandler) Restore(w http.ResponseWriter, r *http.Request) {
	if err := h.Archive.RestoreFile(r.Context(), chi.URLParam(r, "id"), actorFrom(r), clientInfo(r)); err != nil {
		writeError(w, h.Logger, "RestoreFile", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *FileHandler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	var in service.DescriptiveInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, h.Logger, "UpdateMetadata", err)
		return
	}
	d, err := h.Metadata.UpdateDescriptive(r.Context(), chi.URLParam(r, "id"), in, actorFrom(r))
	if err != nil {
		writeError(w, h.Logger, "UpdateMetadata", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *FileHandler) Verify(w http.ResponseWriter, r *http.Request) {
	res, err := h.Fixity.VerifyFile(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		writeError(w, h.Logger, "VerifyFile", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// VerifyAll — внеплановая пакетная проверка; limit ограничивает число файлов.
func (h *FileHandler) VerifyAll(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, h.Logger, "VerifyAll", err)
		return
	}
	report, err := h.Fixity.VerifyAll(r.Context(), limit)
	if err != nil {
		writeError(w, h.Logger, "VerifyAll", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *FileHandler) FixityReport(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, h.Logger, "FixityReport", err)
		return
	}
	report, err := h.Fixity.GetFixityReport(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, h.Logger, "FixityReport", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
