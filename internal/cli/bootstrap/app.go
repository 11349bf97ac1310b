// Package bootstrap собирает сервисы архива для административного CLI.
package bootstrap

import (
	"fmt"

	"go.uber.org/zap"

	"ArchiveKeeper/internal/config"
	"ArchiveKeeper/internal/crypto"
	"ArchiveKeeper/internal/repo"
	"ArchiveKeeper/internal/service"
)

// App — сервисы, с которыми работают команды CLI.
type App struct {
	Config   *config.Config
	Log      *zap.SugaredLogger
	Store    *repo.Store
	Content  *service.ContentStore
	Audit    *service.AuditService
	Lockout  *service.LockoutService
	Metadata *service.MetadataService
	Archive  *service.ArchiveService
	Fixity   *service.FixityService
}

// Open подключается к БД из конфигурации и собирает сервисы.
// Без ключа шифрования работа невозможна: ошибка конфигурации возвращается до открытия БД.
// cleanup закрывает соединение с БД.
func Open(cfg *config.Config, log *zap.SugaredLogger) (*App, func() error, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	enc, err := crypto.New(cfg.EncryptionKey)
	if err != nil {
		return nil, nil, err
	}

	db, err := repo.InitDB(cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open archive db: %w", err)
	}
	store := repo.NewStore(db)

	content := service.NewContentStore(cfg.StorageRoot)
	audit := service.NewAuditService(store.Audit, enc, log)
	meta := service.NewMetadataService(store, audit, log)

	app := &App{
		Config:   cfg,
		Log:      log,
		Store:    store,
		Content:  content,
		Audit:    audit,
		Lockout:  service.NewLockoutService(store, audit, log, cfg.LockoutThreshold, cfg.LockoutDuration),
		Metadata: meta,
		Archive:  service.NewArchiveService(store, content, meta, audit, log),
		Fixity:   service.NewFixityService(store, content, meta, audit, log, cfg.FixityConcurrency),
	}
	return app, store.Close, nil
}
