package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"ArchiveKeeper/internal/model"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// InitDB открывает БД по DSN и применяет миграции.
// postgres://, postgresql:// и key=value DSN уходят в PostgreSQL,
// file:/sqlite: — во встроенный SQLite (modernc.org/sqlite, без cgo).
func InitDB(dsn string) (*gorm.DB, error) {
	dial, isSQLite := dialectorFor(dsn)

	db, err := gorm.Open(dial, &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if isSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLite допускает одного писателя; один коннект исключает SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func dialectorFor(dsn string) (gorm.Dialector, bool) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"),
		strings.HasPrefix(dsn, "postgresql://"),
		strings.Contains(dsn, "host="):
		return postgres.Open(dsn), false
	}

	path := strings.TrimPrefix(dsn, "sqlite:")
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	path += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	return gormsqlite.Dialector{DriverName: "sqlite", DSN: path}, true
}

// Migrate создаёт/обновляет таблицы всех моделей.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.ArchivedFile{},
		&model.FileVersion{},
		&model.DescriptiveMetadata{},
		&model.PreservationMetadata{},
		&model.AuditLog{},
		&model.AccountLockout{},
	)
}

// Repositories — набор репозиториев поверх одного *gorm.DB или одной транзакции.
type Repositories struct {
	Files    FileRepository
	Versions VersionRepository
	Metadata MetadataRepository
	Audit    AuditRepository
	Lockouts LockoutRepository
	Users    UserRepository
}

// NewRepositories создаёт репозитории, работающие через db.
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Files:    NewFileRepository(db),
		Versions: NewVersionRepository(db),
		Metadata: NewMetadataRepository(db),
		Audit:    NewAuditRepository(db),
		Lockouts: NewLockoutRepository(db),
		Users:    NewUserRepository(db),
	}
}

// Store — точка доступа к хранилищу: репозитории вне транзакции и InTx для атомарных блоков.
type Store struct {
	*Repositories
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{Repositories: NewRepositories(db), db: db}
}

// InTx выполняет fn в одной транзакции. Ошибка fn откатывает все шаги.
func (s *Store) InTx(ctx context.Context, fn func(r *Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// Ping проверяет доступность БД.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Dialect возвращает имя диалекта (postgres | sqlite).
func (s *Store) Dialect() string {
	return s.db.Dialector.Name()
}

// Close закрывает пул соединений.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IsDuplicate сообщает о нарушении уникального ограничения.
// Драйвер modernc не переводится в gorm.ErrDuplicatedKey, поэтому проверяем и текст ошибки.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
