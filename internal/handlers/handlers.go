package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"ArchiveKeeper/internal/config"
	"ArchiveKeeper/internal/middleware"
	"ArchiveKeeper/internal/service"
)

// Services — сервисы, которые обслуживает HTTP-слой.
type Services struct {
	Users    *service.UserService
	Lockout  *service.LockoutService
	Archive  *service.ArchiveService
	Metadata *service.MetadataService
	Fixity   *service.FixityService
	Audit    *service.AuditService
	Content  *service.ContentStore
}

type Handler struct {
	Router chi.Router
}

// NewHandler разводящий для хендлеров
func NewHandler(svc Services, logger *zap.SugaredLogger, cfg *config.Config) *Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.WithMetrics)
	r.Use(middleware.WithGzip)
	r.Use(middleware.WithLogging)
	r.Use(middleware.WithAuth(cfg.AuthSecret))

	userHandler := NewUserHandler(svc.Users, svc.Lockout, logger, cfg)
	fileHandler := NewFileHandler(svc.Archive, svc.Metadata, svc.Fixity, svc.Content, logger)
	auditHandler := NewAuditHandler(svc.Audit, logger)

	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/user/register", userHandler.Register)
	r.Post("/api/user/login", userHandler.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin(cfg.AdminIDs))
			r.Post("/api/admin/unlock/{identity}", userHandler.Unlock)
			r.Get("/api/admin/lockout/{identity}", userHandler.LockoutInfo)
			r.Get("/api/admin/lockouts", userHandler.ListLocked)
		})

		r.Route("/api/files", func(r chi.Router) {
			r.Post("/", fileHandler.Register)
			r.Get("/search", fileHandler.Search)
			r.Get("/stats", fileHandler.Stats)
			r.Post("/verify-all", fileHandler.VerifyAll)
			r.Get("/{id}", fileHandler.Get)
			r.Delete("/{id}", fileHandler.Delete)
			r.Post("/{id}/restore", fileHandler.Restore)
			r.Get("/{id}/content", fileHandler.Download)
			r.Get("/{id}/versions", fileHandler.ListVersions)
			r.Post("/{id}/versions", fileHandler.CreateVersion)
			r.Patch("/{id}/metadata", fileHandler.UpdateMetadata)
			r.Post("/{id}/verify", fileHandler.Verify)
			r.Get("/{id}/fixity", fileHandler.FixityReport)
		})

		r.Get("/api/audit/resource/{id}", auditHandler.ByResource)
		r.Get("/api/audit/actor/{id}", auditHandler.ByActor)
		r.Get("/api/audit/recent", auditHandler.Recent)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Code: "NOT_FOUND", Message: "route not found"})
	})

	return &Handler{Router: r}
}
