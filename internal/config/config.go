package config

import (
	"flag"
	"regexp"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// SchemaEncryptedPII — версия схемы, начиная с которой контактные данные
// пользователей хранятся в зашифрованном виде (шифртекст + хеш для поиска).
const SchemaEncryptedPII = 2

type Config struct {
	// Server-side settings
	DatabaseDSN string `env:"DATABASE_URI"`
	AuthSecret  string `env:"AUTH_SECRET"`
	BaseURL     string `env:"BASE_URL"`
	EnableHTTPS bool   `env:"ENABLE_HTTPS"`
	LogDev      bool   `env:"LOG_DEV"`

	// Шифрование полей и версия схемы БД
	EncryptionKey string `env:"ENCRYPTION_KEY"`
	SchemaVersion int    `env:"SCHEMA_VERSION" envDefault:"2"`

	// Хранилище и резервные копии
	StorageRoot string `env:"STORAGE_ROOT"`
	BackupDir   string `env:"BACKUP_DIR"`
	BackupKeep  int    `env:"BACKUP_KEEP" envDefault:"7"`

	// Проверка целостности
	FixityBatchSize   int `env:"FIXITY_BATCH_SIZE" envDefault:"1000"`
	FixityConcurrency int `env:"FIXITY_CONCURRENCY" envDefault:"4"`

	// Защита от перебора паролей
	LockoutThreshold  int           `env:"LOCKOUT_THRESHOLD" envDefault:"5"`
	LockoutDuration   time.Duration `env:"LOCKOUT_DURATION" envDefault:"15m"`
	RateLimitAttempts int           `env:"RATE_LIMIT_ATTEMPTS" envDefault:"20"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"15m"`

	// Пользователи с доступом к /api/admin/*. Пустой список закрывает админские маршруты.
	AdminIDs []int64 `env:"ADMIN_IDS" envSeparator:","`

	// Мониторинг
	MonitorInterval     time.Duration `env:"MONITOR_INTERVAL" envDefault:"5m"`
	MemoryWarnMB        int           `env:"MEMORY_WARN_MB" envDefault:"512"`
	MemoryCriticalMB    int           `env:"MEMORY_CRITICAL_MB" envDefault:"1024"`
	DiskWarnPercent     int           `env:"DISK_WARN_PERCENT" envDefault:"80"`
	DiskCriticalPercent int           `env:"DISK_CRITICAL_PERCENT" envDefault:"95"`

	ServerURL string `env:"-"`
}

// EncryptedPII сообщает, содержит ли схема БД зашифрованные колонки контактных данных.
// Значение определяется один раз при старте и не перепроверяется в рантайме.
func (c *Config) EncryptedPII() bool {
	return c.SchemaVersion >= SchemaEncryptedPII
}

func NewConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{}
	_ = env.Parse(cfg)

	// flags работают ТОЛЬКО если переменные из env не заданы
	flag.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "строка подключения к БД (postgres://... или file:archive.db)")
	flag.StringVar(&cfg.AuthSecret, "auth-secret", cfg.AuthSecret, "секрет для подписи JWT")
	flag.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "address:port HTTP-сервера")
	flag.BoolVar(&cfg.EnableHTTPS, "https", cfg.EnableHTTPS, "enable HTTPS scheme for ServerURL")
	flag.StringVar(&cfg.StorageRoot, "storage-root", cfg.StorageRoot, "корневой каталог архивного хранилища")
	flag.StringVar(&cfg.BackupDir, "backup-dir", cfg.BackupDir, "каталог резервных копий каталога")
	flag.IntVar(&cfg.FixityBatchSize, "fixity-batch", cfg.FixityBatchSize, "размер пакета ночной проверки целостности")

	flag.Parse()

	applyDefaults(cfg)
	return cfg
}

// applyDefaults подставляет значения по умолчанию для пустых полей.
// Ключ шифрования намеренно не получает значения по умолчанию.
func applyDefaults(cfg *Config) {
	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = "file:archive.db"
	}
	if cfg.AuthSecret == "" {
		cfg.AuthSecret = "dev-secret-key"
	}
	// validate BaseURL: must be in "address:port" (no scheme, no path). Otherwise use default.
	hostPortRe := regexp.MustCompile(`^[A-Za-z0-9\.\-]+:\d{1,5}$`)
	if !hostPortRe.MatchString(cfg.BaseURL) {
		cfg.BaseURL = "localhost:8081"
	}
	if cfg.EnableHTTPS {
		cfg.ServerURL = "https://" + cfg.BaseURL
	} else {
		cfg.ServerURL = "http://" + cfg.BaseURL
	}
	if cfg.StorageRoot == "" {
		cfg.StorageRoot = "storage"
	}
	if cfg.BackupDir == "" {
		cfg.BackupDir = "backups"
	}
	if cfg.SchemaVersion <= 0 {
		cfg.SchemaVersion = SchemaEncryptedPII
	}
	if cfg.BackupKeep <= 0 {
		cfg.BackupKeep = 7
	}
	if cfg.FixityBatchSize <= 0 {
		cfg.FixityBatchSize = 1000
	}
	if cfg.FixityConcurrency <= 0 {
		cfg.FixityConcurrency = 4
	}
	if cfg.LockoutThreshold <= 0 {
		cfg.LockoutThreshold = 5
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 15 * time.Minute
	}
	if cfg.RateLimitAttempts <= 0 {
		cfg.RateLimitAttempts = 20
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = 15 * time.Minute
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = 5 * time.Minute
	}
}
