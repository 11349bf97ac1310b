package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ArchiveKeeper/internal/config"
	"ArchiveKeeper/internal/crypto"
	"ArchiveKeeper/internal/handlers"
	"ArchiveKeeper/internal/middleware"
	"ArchiveKeeper/internal/repo"
	"ArchiveKeeper/internal/scheduler"
	"ArchiveKeeper/internal/service"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.NewConfig()

	logger, err := newLogger(cfg.LogDev)
	if err != nil {
		panic(err)
	}
	sugar := logger.Sugar()
	middleware.SetLogger(sugar)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// без ключа шифрования сервер не стартует
	enc, err := crypto.New(cfg.EncryptionKey)
	if err != nil {
		sugar.Fatalw("invalid encryption configuration", "error", err)
	}

	gormDB, err := repo.InitDB(cfg.DatabaseDSN)
	if err != nil {
		sugar.Fatalw("failed to initialize database", "error", err)
	}
	store := repo.NewStore(gormDB)
	defer func() {
		if err := store.Close(); err != nil {
			sugar.Errorw("failed to close database", "error", err)
		}
	}()

	content := service.NewContentStore(cfg.StorageRoot)
	audit := service.NewAuditService(store.Audit, enc, sugar)
	meta := service.NewMetadataService(store, audit, sugar)
	lockout := service.NewLockoutService(store, audit, sugar, cfg.LockoutThreshold, cfg.LockoutDuration)
	archive := service.NewArchiveService(store, content, meta, audit, sugar)
	fixity := service.NewFixityService(store, content, meta, audit, sugar, cfg.FixityConcurrency)
	users := service.NewUserService(store.Users,
		service.WithEmailEncryption(enc, cfg.EncryptedPII()),
		service.WithLoginGuard(lockout),
		service.WithAttemptLimiter(service.NewRateLimiter(cfg.RateLimitAttempts, cfg.RateLimitWindow)),
		service.WithUserLogger(sugar),
	)

	monitor := scheduler.NewMonitor(store, cfg.StorageRoot, scheduler.Thresholds{
		MemoryWarnMB:        cfg.MemoryWarnMB,
		MemoryCriticalMB:    cfg.MemoryCriticalMB,
		DiskWarnPercent:     cfg.DiskWarnPercent,
		DiskCriticalPercent: cfg.DiskCriticalPercent,
	}, scheduler.NewLogNotifier(sugar), sugar)

	sched := scheduler.New(sugar,
		scheduler.FixityJob(fixity, audit, cfg.FixityBatchSize, sugar),
		scheduler.BackupJob(scheduler.NewCatalogBackupStore(store, cfg.BackupDir), cfg.BackupKeep, sugar),
		scheduler.MonitorJob(monitor, cfg.MonitorInterval),
	)
	sched.Start(ctx)
	defer sched.Stop()

	h := handlers.NewHandler(handlers.Services{
		Users:    users,
		Lockout:  lockout,
		Archive:  archive,
		Metadata: meta,
		Fixity:   fixity,
		Audit:    audit,
		Content:  content,
	}, sugar, cfg)

	srv := &http.Server{
		Addr:              cfg.BaseURL,
		Handler:           h.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sugar.Infow("Starting server",
		"addr", cfg.BaseURL,
		"https", cfg.EnableHTTPS,
		"dialect", store.Dialect(),
		"storage_root", cfg.StorageRoot,
		"schema_version", cfg.SchemaVersion,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Errorw("Server failed", "error", err)
		}
	case <-ctx.Done():
		sugar.Infow("Shutdown signal received")
		shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			sugar.Errorw("graceful shutdown failed", "error", err)
		}
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
