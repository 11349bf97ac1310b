package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ArchiveKeeper/internal/apperr"
	"ArchiveKeeper/internal/model"
	"ArchiveKeeper/internal/service"
)

// AuditHandler — чтение журнала происхождения.
type AuditHandler struct {
	Audit  *service.AuditService
	Logger *zap.SugaredLogger
}

func NewAuditHandler(audit *service.AuditService, logger *zap.SugaredLogger) *AuditHandler {
	return &AuditHandler{Audit: audit, Logger: logger}
}

type auditPage struct {
	Entries []model.AuditLog `json:"entries"`
	Total   int64            `json:"total"`
}

func page(r *http.Request) (int, int, error) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return 0, 0, err
	}
	offset, err := queryInt(r, "offset")
	return limit, offset, err
}

func (h *AuditHandler) respond(w http.ResponseWriter, op string, entries []model.AuditLog, total int64, err error) {
	if err != nil {
		writeError(w, h.Logger, op, err)
		return
	}
	if entries == nil {
		entries = []model.AuditLog{}
	}
	writeJSON(w, http.StatusOK, auditPage{Entries: entries, Total: total})
}

func (h *AuditHandler) ByResource(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, h.Logger, "AuditByResource", err)
		return
	}
	entries, total, err := h.Audit.QueryByResource(r.Context(), chi.URLParam(r, "id"), limit, offset)
	h.respond(w, "AuditByResource", entries, total, err)
}

func (h *AuditHandler) ByActor(w http.ResponseWriter, r *http.Request) {
	actor, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, h.Logger, "AuditByActor", apperr.Validation("actor id must be an integer"))
		return
	}
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, h.Logger, "AuditByActor", err)
		return
	}
	entries, total, err := h.Audit.QueryByActor(r.Context(), actor, limit, offset)
	h.respond(w, "AuditByActor", entries, total, err)
}

// Recent — последние записи; action, resource_type, from, to сужают выборку.
func (h *AuditHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, h.Logger, "AuditRecent", err)
		return
	}
	q := r.URL.Query()
	if q.Get("action") == "" && q.Get("resource_type") == "" && q.Get("from") == "" && q.Get("to") == "" {
		entries, total, err := h.Audit.QueryRecent(r.Context(), limit, offset)
		h.respond(w, "AuditRecent", entries, total, err)
		return
	}

	c := service.AuditCriteria{
		Action:       model.AuditAction(q.Get("action")),
		ResourceType: model.AuditResource(q.Get("resource_type")),
		Limit:        limit,
		Offset:       offset,
	}
	if c.From, err = queryTime(r, "from"); err != nil {
		writeError(w, h.Logger, "AuditRecent", err)
		return
	}
	if c.To, err = queryTime(r, "to"); err != nil {
		writeError(w, h.Logger, "AuditRecent", err)
		return
	}
	entries, total, err := h.Audit.Search(r.Context(), c)
	h.respond(w, "AuditRecent", entries, total, err)
}
