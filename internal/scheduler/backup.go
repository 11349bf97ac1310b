package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ArchiveKeeper/internal/model"
	"ArchiveKeeper/internal/repo"
)

const (
	catalogPrefix   = "catalog-"
	catalogSuffix   = ".json"
	catalogPageSize = 500

	// наносекунды фиксированной ширины сохраняют порядок копий, снятых в одну секунду
	catalogStampLayout = "20060102T150405.000000000Z"
)

// BackupStore — приёмник резервных копий.
type BackupStore interface {
	// Backup создаёт новую копию и возвращает её имя.
	Backup(ctx context.Context) (string, error)
	// Prune оставляет keep самых свежих копий и возвращает имена удалённых.
	Prune(ctx context.Context, keep int) ([]string, error)
}

// CatalogEntry — запись каталога: файл и его история версий.
type CatalogEntry struct {
	File     model.ArchivedFile  `json:"file"`
	Versions []model.FileVersion `json:"versions"`
}

// Catalog — снимок каталога архива.
type Catalog struct {
	CreatedAt time.Time      `json:"created_at"`
	Files     []CatalogEntry `json:"files"`
}

// CatalogBackupStore сохраняет JSON-снимок каталога (файлы, дайджесты, версии) в каталог на диске.
type CatalogBackupStore struct {
	store *repo.Store
	dir   string
	now   func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewCatalogBackupStore(store *repo.Store, dir string) *CatalogBackupStore {
	return &CatalogBackupStore{store: store, dir: dir, now: func() time.Time { return time.Now().UTC() }}
}

func (b *CatalogBackupStore) Dir() string { return b.dir }

func (b *CatalogBackupStore) Backup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(b.dir, 0o750); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	cat := Catalog{CreatedAt: b.stamp(), Files: []CatalogEntry{}}
	for offset := 0; ; offset += catalogPageSize {
		page, err := b.store.Files.ListPage(ctx, catalogPageSize, offset)
		if err != nil {
			return "", fmt.Errorf("list files: %w", err)
		}
		for _, f := range page {
			versions, err := b.store.Versions.ListByFile(ctx, f.ID)
			if err != nil {
				return "", fmt.Errorf("list versions of %s: %w", f.ID, err)
			}
			cat.Files = append(cat.Files, CatalogEntry{File: f, Versions: versions})
		}
		if len(page) < catalogPageSize {
			break
		}
	}

	// метка времени в имени даёт лексикографический порядок копий
	name := catalogPrefix + cat.CreatedAt.UTC().Format(catalogStampLayout) + "-" + uuid.NewString()[:8] + catalogSuffix
	tmp, err := os.CreateTemp(b.dir, ".catalog-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cat); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("encode catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(b.dir, name)); err != nil {
		return "", fmt.Errorf("publish backup: %w", err)
	}
	return name, nil
}

// stamp возвращает строго возрастающее время снимка, даже если часы не сдвинулись.
func (b *CatalogBackupStore) stamp() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	at := b.now().UTC()
	if !at.After(b.last) {
		at = b.last.Add(time.Nanosecond)
	}
	b.last = at
	return at
}

// List возвращает имена копий, самые свежие первыми.
func (b *CatalogBackupStore) List() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, catalogPrefix) && strings.HasSuffix(n, catalogSuffix) {
			names = append(names, n)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func (b *CatalogBackupStore) Prune(_ context.Context, keep int) ([]string, error) {
	if keep < 1 {
		keep = 1
	}
	names, err := b.List()
	if err != nil || len(names) <= keep {
		return nil, err
	}
	var removed []string
	for _, n := range names[keep:] {
		if err := os.Remove(filepath.Join(b.dir, n)); err != nil {
			return removed, fmt.Errorf("remove %s: %w", n, err)
		}
		removed = append(removed, n)
	}
	return removed, nil
}
