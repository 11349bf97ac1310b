package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ArchiveKeeper/internal/model"
)

// Ключи сортировки поиска.
const (
	SortRelevance = "relevance"
	SortDate      = "date"
	SortTitle     = "title"
)

// SearchQuery — параметры поиска по каталогу. Limit/Offset уже нормализованы вызывающим.
type SearchQuery struct {
	Text        string
	Category    string
	Creator     string
	AccessLevel model.AccessLevel
	DateFrom    *time.Time
	DateTo      *time.Time

	SortBy   string
	SortDesc bool

	Limit  int
	Offset int
}

// SearchRow — найденный файл с описательными метаданными и оценкой релевантности.
type SearchRow struct {
	File        model.ArchivedFile
	Descriptive *model.DescriptiveMetadata
	Score       float64
}

// FileStats — агрегаты по неудалённым файлам каталога.
type FileStats struct {
	TotalFiles   int64
	Categories   int64
	TotalSize    int64
	AvgRating    float64
	Contributors int64
}

type FileRepository interface {
	Create(ctx context.Context, f *model.ArchivedFile) error
	GetByID(ctx context.Context, id string) (*model.ArchivedFile, error)
	// GetByIDForUpdate читает строку с блокировкой (FOR UPDATE там, где диалект поддерживает)
	GetByIDForUpdate(ctx context.Context, id string) (*model.ArchivedFile, error)
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	Update(ctx context.Context, id string, updates map[string]any) error
	ListAccessible(ctx context.Context, limit int) ([]model.ArchivedFile, error)
	ListPage(ctx context.Context, limit, offset int) ([]model.ArchivedFile, error)
	Search(ctx context.Context, q SearchQuery) ([]SearchRow, int64, error)
	Stats(ctx context.Context) (FileStats, error)
}

type fileRepo struct{ db *gorm.DB }

func NewFileRepository(db *gorm.DB) FileRepository { return &fileRepo{db: db} }

func (r *fileRepo) Create(ctx context.Context, f *model.ArchivedFile) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *fileRepo) GetByID(ctx context.Context, id string) (*model.ArchivedFile, error) {
	var f model.ArchivedFile
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *fileRepo) GetByIDForUpdate(ctx context.Context, id string) (*model.ArchivedFile, error) {
	var f model.ArchivedFile
	q := r.db.WithContext(ctx)
	if q.Dialector.Name() == DialectPostgres {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.Where("id = ?", id).Take(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *fileRepo) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.ArchivedFile{}).
		Where("file_hash = ?", hash).
		Count(&n).Error
	return n > 0, err
}

// Update частично обновляет файл. Нет строки — gorm.ErrRecordNotFound.
func (r *fileRepo) Update(ctx context.Context, id string, updates map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&model.ArchivedFile{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListAccessible возвращает доступные и неудалённые файлы, самые свежие первыми.
func (r *fileRepo) ListAccessible(ctx context.Context, limit int) ([]model.ArchivedFile, error) {
	var out []model.ArchivedFile
	q := r.db.WithContext(ctx).
		Where("is_accessible = ? AND deleted = ?", true, false).
		Order("updated_at DESC").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ListPage — постраничный обход всего каталога (включая удалённые) в стабильном порядке.
func (r *fileRepo) ListPage(ctx context.Context, limit, offset int) ([]model.ArchivedFile, error) {
	var out []model.ArchivedFile
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	return out, err
}

type scoredID struct {
	ID    string
	Score float64
}

func (r *fileRepo) Search(ctx context.Context, q SearchQuery) ([]SearchRow, int64, error) {
	db := r.db.WithContext(ctx)
	isPG := db.Dialector.Name() == DialectPostgres

	base := db.Table("archived_files AS f").
		Joins("LEFT JOIN descriptive_metadata AS d ON d.file_id = f.id").
		Where("f.deleted = ?", false)

	scoreExpr := "0"
	var scoreArgs []any

	if text := strings.TrimSpace(q.Text); text != "" {
		if isPG {
			doc := "to_tsvector('simple', coalesce(f.filename, '') || ' ' || coalesce(d.title, '') || ' ' || coalesce(d.description, ''))"
			base = base.Where(doc+" @@ plainto_tsquery('simple', ?)", text)
			scoreExpr = "ts_rank(" + doc + ", plainto_tsquery('simple', ?))"
			scoreArgs = []any{text}
		} else {
			like := "%" + strings.ToLower(text) + "%"
			base = base.Where(
				"(LOWER(f.filename) LIKE ? OR LOWER(COALESCE(d.title, '')) LIKE ? OR LOWER(COALESCE(d.description, '')) LIKE ?)",
				like, like, like,
			)
			// Вес совпадения: имя файла > заголовок > описание
			scoreExpr = "(CASE WHEN LOWER(f.filename) LIKE ? THEN 2.0 ELSE 0 END" +
				" + CASE WHEN LOWER(COALESCE(d.title, '')) LIKE ? THEN 1.5 ELSE 0 END" +
				" + CASE WHEN LOWER(COALESCE(d.description, '')) LIKE ? THEN 1.0 ELSE 0 END)"
			scoreArgs = []any{like, like, like}
		}
	}
	if q.Category != "" {
		base = base.Where("f.category = ?", q.Category)
	}
	if q.Creator != "" {
		base = base.Where("LOWER(d.creator) LIKE ?", "%"+strings.ToLower(q.Creator)+"%")
	}
	if q.AccessLevel != "" {
		base = base.Where("f.access_level = ?", q.AccessLevel)
	}
	if q.DateFrom != nil {
		base = base.Where("f.created_at >= ?", *q.DateFrom)
	}
	if q.DateTo != nil {
		base = base.Where("f.created_at <= ?", *q.DateTo)
	}
	base = base.Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []SearchRow{}, 0, nil
	}

	dir := "ASC"
	if q.SortDesc {
		dir = "DESC"
	}
	var order string
	switch q.SortBy {
	case SortDate:
		order = "f.created_at " + dir
	case SortTitle:
		order = "LOWER(COALESCE(d.title, f.filename)) " + dir
	default:
		order = "score DESC, f.created_at DESC"
	}

	var ids []scoredID
	err := base.
		Select("f.id AS id, "+scoreExpr+" AS score", scoreArgs...).
		Order(order).
		Order("f.id ASC").
		Limit(q.Limit).
		Offset(q.Offset).
		Scan(&ids).Error
	if err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return []SearchRow{}, total, nil
	}

	keys := make([]string, 0, len(ids))
	for _, s := range ids {
		keys = append(keys, s.ID)
	}

	var files []model.ArchivedFile
	if err := db.Where("id IN ?", keys).Find(&files).Error; err != nil {
		return nil, 0, err
	}
	var descs []model.DescriptiveMetadata
	if err := db.Where("file_id IN ?", keys).Find(&descs).Error; err != nil {
		return nil, 0, err
	}

	byID := make(map[string]model.ArchivedFile, len(files))
	for _, f := range files {
		byID[f.ID] = f
	}
	descByID := make(map[string]*model.DescriptiveMetadata, len(descs))
	for i := range descs {
		descByID[descs[i].FileID] = &descs[i]
	}

	out := make([]SearchRow, 0, len(ids))
	for _, s := range ids {
		f, ok := byID[s.ID]
		if !ok {
			continue
		}
		out = append(out, SearchRow{File: f, Descriptive: descByID[s.ID], Score: s.Score})
	}
	return out, total, nil
}

func (r *fileRepo) Stats(ctx context.Context) (FileStats, error) {
	var s FileStats
	err := r.db.WithContext(ctx).
		Model(&model.ArchivedFile{}).
		Where("deleted = ?", false).
		Select("COUNT(*) AS total_files, " +
			"COUNT(DISTINCT NULLIF(category, '')) AS categories, " +
			"COALESCE(SUM(size), 0) AS total_size, " +
			"COALESCE(AVG(rating), 0) AS avg_rating, " +
			"COUNT(DISTINCT owner_id) AS contributors").
		Scan(&s).Error
	return s, err
}
