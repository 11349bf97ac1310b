package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ArchiveKeeper/internal/config"
	"ArchiveKeeper/internal/middleware"
	"ArchiveKeeper/internal/service"
)

// UserHandler — регистрация, вход и администрирование блокировок.
type UserHandler struct {
	UserService    *service.UserService
	LockoutService *service.LockoutService
	Logger         *zap.SugaredLogger
	Config         *config.Config
}

func NewUserHandler(users *service.UserService, lockout *service.LockoutService, logger *zap.SugaredLogger, cfg *config.Config) *UserHandler {
	return &UserHandler{UserService: users, LockoutService: lockout, Logger: logger, Config: cfg}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

type userResponse struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// Register создаёт пользователя и сразу выставляет cookie сессии.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Logger, "Register", err)
		return
	}

	u, err := h.UserService.Register(r.Context(), req.Login, req.Password, req.Email)
	if err != nil {
		writeError(w, h.Logger, "Register", err)
		return
	}
	if err := middleware.SetLoginCookie(w, u.ID, h.Config.AuthSecret); err != nil {
		writeError(w, h.Logger, "Register", err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: u.ID, Login: u.Login})
}

// Login проверяет учётные данные. Блокировка — 423, превышение частоты — 429.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.Logger, "Login", err)
		return
	}

	u, err := h.UserService.Login(r.Context(), req.Login, req.Password, clientInfo(r).IPAddress)
	if err != nil {
		writeError(w, h.Logger, "Login", err)
		return
	}
	if err := middleware.SetLoginCookie(w, u.ID, h.Config.AuthSecret); err != nil {
		writeError(w, h.Logger, "Login", err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: u.ID, Login: u.Login})
}

type unlockRequest struct {
	Reason string `json:"reason"`
}

// Unlock снимает блокировку вручную. Тело запроса необязательно.
func (h *UserHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	var req unlockRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, h.Logger, "Unlock", err)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "manual unlock"
	}

	actor, _ := middleware.GetUserIDFromContext(r.Context())
	identity := chi.URLParam(r, "identity")
	if err := h.LockoutService.UnlockAccount(r.Context(), identity, req.Reason, &actor); err != nil {
		writeError(w, h.Logger, "Unlock", err)
		return
	}
	info, err := h.LockoutService.GetInfo(r.Context(), identity)
	if err != nil {
		writeError(w, h.Logger, "Unlock", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *UserHandler) LockoutInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.LockoutService.GetInfo(r.Context(), chi.URLParam(r, "identity"))
	if err != nil {
		writeError(w, h.Logger, "LockoutInfo", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *UserHandler) ListLocked(w http.ResponseWriter, r *http.Request) {
	list, err := h.LockoutService.ListLocked(r.Context())
	if err != nil {
		writeError(w, h.Logger, "ListLocked", err)
		return
	}
	if list == nil {
		list = []service.LockoutInfo{}
	}
	writeJSON(w, http.StatusOK, list)
}
