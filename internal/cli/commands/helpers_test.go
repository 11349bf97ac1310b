package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ArchiveKeeper/internal/cli/bootstrap"
	"ArchiveKeeper/internal/config"
	"ArchiveKeeper/internal/model"
	"ArchiveKeeper/internal/service"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// fakeCmd позволяет управлять результатом Run
type fakeCmd struct {
	name, usage, desc string
	run               func(ctx context.Context, app *bootstrap.App, args []string) error
}

func (f fakeCmd) Name() string        { return f.name }
func (f fakeCmd) Description() string { return f.desc }
func (f fakeCmd) Usage() string       { return f.usage }
func (f fakeCmd) Run(ctx context.Context, app *bootstrap.App, args []string) error {
	return f.run(ctx, app, args)
}

// перехват вывода на время теста
func withStdoutCapture(t *testing.T, fn func()) string {
	t.Helper()
	old := Out
	var buf bytes.Buffer
	Out = &buf
	defer func() { Out = old }()
	fn()
	return buf.String()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DatabaseDSN:       "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		EncryptionKey:     testKey,
		StorageRoot:       t.TempDir(),
		BackupDir:         t.TempDir(),
		BackupKeep:        2,
		FixityBatchSize:   100,
		FixityConcurrency: 2,
		LockoutThreshold:  3,
	}
}

// newTestApp открывает приложение поверх sqlite в памяти
func newTestApp(t *testing.T) *bootstrap.App {
	t.Helper()
	app, done, err := bootstrap.Open(testConfig(t), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = done() })
	return app
}

// openerFor отдаёт уже открытое приложение; закрытие остаётся за t.Cleanup
func openerFor(app *bootstrap.App) Opener {
	return func() (*bootstrap.App, func() error, error) {
		return app, func() error { return nil }, nil
	}
}

func registerFile(t *testing.T, app *bootstrap.App, name, data string) *model.ArchivedFile {
	t.Helper()
	path := filepath.Join(app.Config.StorageRoot, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	f, err := app.Archive.RegisterFile(context.Background(), service.RegisterInput{Path: path})
	require.NoError(t, err)
	return f
}
