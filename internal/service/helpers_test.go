package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ArchiveKeeper/internal/crypto"
	"ArchiveKeeper/internal/hashing"
	"ArchiveKeeper/internal/model"
	"ArchiveKeeper/internal/repo"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type testEnv struct {
	store   *repo.Store
	dir     string
	content *ContentStore
	audit   *AuditService
	meta    *MetadataService
	archive *ArchiveService
	fixity  *FixityService
	lockout *LockoutService
}

// newTestEnv собирает сервисы поверх отдельной in-memory SQLite и временного каталога хранилища
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repo.InitDB("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	log := zap.NewNop().Sugar()
	enc, err := crypto.New(testKey)
	require.NoError(t, err)

	store := repo.NewStore(db)
	dir := t.TempDir()
	content := NewContentStore(dir)
	audit := NewAuditService(store.Audit, enc, log)
	meta := NewMetadataService(store, audit, log)

	return &testEnv{
		store:   store,
		dir:     dir,
		content: content,
		audit:   audit,
		meta:    meta,
		archive: NewArchiveService(store, content, meta, audit, log),
		fixity:  NewFixityService(store, content, meta, audit, log, 3),
		lockout: NewLockoutService(store, audit, log, 5, DefaultLockoutDuration),
	}
}

// writeContent кладёт файл в хранилище и возвращает путь и его дайджест
func (e *testEnv) writeContent(t *testing.T, name, data string) (string, string) {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path, hashing.DigestBytes([]byte(data))
}

// register регистрирует файл с указанным содержимым
func (e *testEnv) register(t *testing.T, name, data string) *model.ArchivedFile {
	t.Helper()
	path, _ := e.writeContent(t, name, data)
	f, err := e.archive.RegisterFile(context.Background(), RegisterInput{Path: path})
	require.NoError(t, err)
	return f
}

func int64p(v int64) *int64 { return &v }
func strp(s string) *string { return &s }
