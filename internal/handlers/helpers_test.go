package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ArchiveKeeper/internal/config"
	"ArchiveKeeper/internal/crypto"
	"ArchiveKeeper/internal/handlers"
	"ArchiveKeeper/internal/middleware"
	"ArchiveKeeper/internal/repo"
	"ArchiveKeeper/internal/service"
)

const (
	testSecret = "test-secret"
	testKey    = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

	adminID int64 = 1
)

type testServer struct {
	router http.Handler
	dir    string
	store  *repo.Store
}

type serverOptions struct {
	users   repo.UserRepository
	limiter service.AttemptLimiter
}

// newTestServer собирает роутер поверх отдельной in-memory SQLite и временного хранилища
func newTestServer(t *testing.T, opts serverOptions) *testServer {
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
	content := service.NewContentStore(dir)
	audit := service.NewAuditService(store.Audit, enc, log)
	meta := service.NewMetadataService(store, audit, log)
	lockout := service.NewLockoutService(store, audit, log, service.DefaultLockoutThreshold, service.DefaultLockoutDuration)

	users := opts.users
	if users == nil {
		users = store.Users
	}
	limiter := opts.limiter
	if limiter == nil {
		limiter = service.NewRateLimiter(1000, time.Minute)
	}

	svc := handlers.Services{
		Users: service.NewUserService(users,
			service.WithEmailEncryption(enc, true),
			service.WithLoginGuard(lockout),
			service.WithAttemptLimiter(limiter),
		),
		Lockout:  lockout,
		Archive:  service.NewArchiveService(store, content, meta, audit, log),
		Metadata: meta,
		Fixity:   service.NewFixityService(store, content, meta, audit, log, 2),
		Audit:    audit,
		Content:  content,
	}
	h := handlers.NewHandler(svc, log, &config.Config{AuthSecret: testSecret, AdminIDs: []int64{adminID}})
	return &testServer{router: h.Router, dir: dir, store: store}
}

// do выполняет запрос; userID > 0 добавляет cookie сессии
func (s *testServer) do(t *testing.T, method, path, body string, userID int64) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if userID > 0 {
		rr := httptest.NewRecorder()
		require.NoError(t, middleware.SetLoginCookie(rr, userID, testSecret))
		for _, c := range rr.Result().Cookies() {
			req.AddCookie(c)
		}
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(s.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func hasAuthCookie(rr *httptest.ResponseRecorder) bool {
	for _, c := range rr.Result().Cookies() {
		if c.Name == middleware.AuthCookieName {
			return true
		}
	}
	return false
}
