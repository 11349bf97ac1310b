package repo

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// newTestDB инициализирует отдельную in-memory SQLite (modernc.org/sqlite) для каждого теста
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitDB("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("failed to open sqlite (modernc): %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestDialectorFor(t *testing.T) {
	cases := map[string]bool{
		"postgres://u:p@localhost:5432/archive": false,
		"host=localhost user=u dbname=archive":  false,
		"file:archive.db":                       true,
		"sqlite:archive.db":                     true,
		"archive.db":                            true,
	}
	for dsn, wantSQLite := range cases {
		_, isSQLite := dialectorFor(dsn)
		if isSQLite != wantSQLite {
			t.Fatalf("dsn %q: sqlite=%v, want %v", dsn, isSQLite, wantSQLite)
		}
	}
}

func TestStore_InTxRollsBack(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db)

	if err := s.Ping(t.Context()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if s.Dialect() != DialectSQLite {
		t.Fatalf("dialect = %q", s.Dialect())
	}

	f := mkFile("f-rollback", "rollback-hash")
	err := s.InTx(t.Context(), func(r *Repositories) error {
		if err := r.Files.Create(t.Context(), &f); err != nil {
			return err
		}
		return gorm.ErrInvalidData
	})
	if err != gorm.ErrInvalidData {
		t.Fatalf("expected fn error to propagate, got %v", err)
	}
	if _, err := s.Files.GetByID(t.Context(), "f-rollback"); err != gorm.ErrRecordNotFound {
		t.Fatalf("row must be rolled back, got err=%v", err)
	}
}
