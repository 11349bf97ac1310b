package service

import (
	"os"
	"path/filepath"
	"strings"

	"ArchiveKeeper/internal/apperr"
	"ArchiveKeeper/internal/hashing"
)

// ContentStore — доступ к содержимому на локальной файловой системе.
// Пути хранения разрешаются только внутри корня хранилища: абсолютный путь допустим,
// если он лежит под корнем, выход через ".." или символические ссылки отклоняется.
type ContentStore struct {
	root string
}

func NewContentStore(root string) *ContentStore {
	return &ContentStore{root: root}
}

// Root — корень хранилища (для проверки свободного места).
func (c *ContentStore) Root() string { return c.root }

// rel приводит путь хранения к пути относительно корня.
func (c *ContentStore) rel(storagePath string) (string, error) {
	if c.root == "" {
		return "", apperr.Configuration("storage root is not configured")
	}
	if strings.TrimSpace(storagePath) == "" {
		return "", apperr.Validation("storage path is required")
	}
	root, err := filepath.Abs(c.root)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeConfiguration, err, "resolve storage root")
	}
	p := storagePath
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	rel, err := filepath.Rel(root, filepath.Clean(p))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperr.Validation("path %q is outside the storage root", storagePath)
	}
	return rel, nil
}

// Resolve превращает путь хранения в путь на диске под корнем хранилища.
func (c *ContentStore) Resolve(storagePath string) (string, error) {
	rel, err := c.rel(storagePath)
	if err != nil {
		return "", err
	}
	root, _ := filepath.Abs(c.root)
	return filepath.Join(root, rel), nil
}

// Open открывает содержимое через os.Root, так что ссылки за пределы корня не разыменовываются.
func (c *ContentStore) Open(storagePath string) (*os.File, error) {
	rel, err := c.rel(storagePath)
	if err != nil {
		return nil, err
	}
	root, err := os.OpenRoot(c.root)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeIO, err, "open storage root")
	}
	defer root.Close()

	f, err := root.Open(rel)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeIO, err, "open %s", storagePath)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, apperr.Wrap(apperr.CodeIO, err, "stat %s", storagePath)
	}
	if fi.IsDir() {
		_ = f.Close()
		return nil, apperr.New(apperr.CodeIO, "%s is a directory", storagePath)
	}
	return f, nil
}

// Digest потоково считает дайджест и размер содержимого. Недоступный путь — IO_ERROR.
func (c *ContentStore) Digest(storagePath string) (string, int64, error) {
	f, err := c.Open(storagePath)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	sum, n, err := hashing.DigestReader(f)
	if err != nil {
		return "", 0, apperr.Wrap(apperr.CodeIO, err, "read %s", storagePath)
	}
	return sum, n, nil
}

// Size возвращает размер содержимого в байтах.
func (c *ContentStore) Size(storagePath string) (int64, error) {
	f, err := c.Open(storagePath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeIO, err, "stat %s", storagePath)
	}
	return fi.Size(), nil
}
