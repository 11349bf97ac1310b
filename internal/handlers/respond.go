package handlers

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"ArchiveKeeper/internal/apperr"
	"ArchiveKeeper/internal/service"
)

// ErrorResponse — тело ответа с ошибкой.
type ErrorResponse struct {
	Code     apperr.Code `json:"code"`
	Message  string      `json:"message"`
	UnlockAt *time.Time  `json:"unlock_at,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}

// statusFor сопоставляет код ошибки с HTTP-статусом.
func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodeIntegrity, apperr.CodeIO:
		return http.StatusUnprocessableEntity
	case apperr.CodeLockout:
		return http.StatusLocked
	case apperr.CodeRateLimit:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// writeError отдаёт {code, message}. Детали внутренних ошибок клиенту не раскрываются.
func writeError(w http.ResponseWriter, log *zap.SugaredLogger, op string, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Internal(err, "")
	}
	status := statusFor(e.Code)
	// неверный логин или пароль — 401, остальные ошибки валидации — 400
	if e == service.ErrInvalidCredentials {
		status = http.StatusUnauthorized
	}
	resp := ErrorResponse{Code: e.Code, Message: e.Message}

	switch status {
	case http.StatusInternalServerError:
		log.Errorw(op+": failed", "error", err)
		resp.Message = "internal error"
	case http.StatusLocked:
		resp.UnlockAt = e.UnlockAt
	case http.StatusTooManyRequests:
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(e.RetryAfter.Seconds()))))
	}
	if status != http.StatusInternalServerError {
		log.Warnw(op+": rejected", "status", status, "code", e.Code, "error", err)
	}
	writeJSON(w, status, resp)
}

// clientInfo — адрес (после RealIP) и User-Agent для журнала.
func clientInfo(r *http.Request) service.ClientInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return service.ClientInfo{IPAddress: ip, UserAgent: r.UserAgent()}
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", name)
	}
	return n, nil
}

func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		if t, err = time.Parse(time.DateOnly, raw); err != nil {
			return nil, apperr.Validation("%s must be RFC3339 or YYYY-MM-DD", name)
		}
	}
	return &t, nil
}
