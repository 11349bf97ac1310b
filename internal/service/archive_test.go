package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ArchiveKeeper/internal/apperr"
	"ArchiveKeeper/internal/hashing"
	"ArchiveKeeper/internal/model"
)

func TestArchiveService_RegisterFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	path, digest := env.writeContent(t, "report.pdf", "quarterly numbers")

	f, err := env.archive.RegisterFile(ctx, RegisterInput{
		Path:        path,
		OwnerID:     int64p(3),
		Category:    "finance",
		Descriptive: DescriptiveInput{Title: strp("Quarterly report")},
		Client:      ClientInfo{IPAddress: "10.0.0.1", UserAgent: "test"},
	})
	require.NoError(t, err)
	assert.Equal(t, digest, f.FileHash)
	assert.EqualValues(t, len("quarterly numbers"), f.Size)
	assert.Equal(t, "report.pdf", f.Filename)
	assert.Equal(t, "application/pdf", f.MimeType)
	assert.EqualValues(t, 1, f.CurrentVersion)
	assert.True(t, f.IsAccessible)
	assert.Equal(t, model.AccessInternal, f.AccessLevel)

	versions, err := env.archive.ListVersions(ctx, f.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.EqualValues(t, 1, versions[0].VersionNumber)
	assert.Equal(t, digest, versions[0].FileHash)

	view, err := env.meta.GetWithMetadata(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly report", view.Descriptive.Title)
	assert.Equal(t, digest, view.Preservation.DigestValue)

	entries, _, err := env.audit.QueryByResource(ctx, f.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.ActionCreate, entries[0].Action)
	assert.Equal(t, "10.0.0.1", entries[0].IPAddress)
	require.NotNil(t, entries[0].ActorID)
	assert.EqualValues(t, 3, *entries[0].ActorID)
}

func TestArchiveService_RegisterFileErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	path, digest := env.writeContent(t, "a.txt", "same bytes")

	_, err := env.archive.RegisterFile(ctx, RegisterInput{Path: path})
	require.NoError(t, err)

	t.Run("duplicate digest", func(t *testing.T) {
		copyPath, _ := env.writeContent(t, "copy.txt", "same bytes")
		_, err := env.archive.RegisterFile(ctx, RegisterInput{Path: copyPath})
		assert.ErrorIs(t, err, apperr.ErrConflict)

		_, err = env.archive.RegisterFile(ctx, RegisterInput{Path: "elsewhere", Digest: strings.ToUpper(digest)})
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("malformed digest", func(t *testing.T) {
		_, err := env.archive.RegisterFile(ctx, RegisterInput{Path: "x.bin", Digest: "abc123"})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("unreadable content", func(t *testing.T) {
		_, err := env.archive.RegisterFile(ctx, RegisterInput{Path: "does/not/exist.bin"})
		assert.ErrorIs(t, err, apperr.ErrIO)
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := env.archive.RegisterFile(ctx, RegisterInput{})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("bad access level", func(t *testing.T) {
		p, _ := env.writeContent(t, "b.txt", "other bytes")
		_, err := env.archive.RegisterFile(ctx, RegisterInput{Path: p, AccessLevel: "top-secret"})
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("failure rolls back every step", func(t *testing.T) {
		p, d := env.writeContent(t, "c.txt", "rolled back")
		bad := model.ResourceType("hologram")
		_, err := env.archive.RegisterFile(ctx, RegisterInput{Path: p, Descriptive: DescriptiveInput{Type: &bad}})
		assert.ErrorIs(t, err, apperr.ErrValidation)

		exists, err := env.store.Files.ExistsByHash(ctx, d)
		require.NoError(t, err)
		assert.False(t, exists)

		st, err := env.archive.GetFileStatistics(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, st.TotalFiles)
	})
}

func TestArchiveService_CreateVersionSequential(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.register(t, "doc.txt", "v1")

	prev := f.FileHash
	for i := 2; i <= 4; i++ {
		path, digest := env.writeContent(t, fmt.Sprintf("doc-v%d.txt", i), fmt.Sprintf("version %d content", i))
		v, err := env.archive.CreateVersion(ctx, VersionInput{FileID: f.ID, Path: path, Actor: int64p(5), Summary: "edit"})
		require.NoError(t, err)
		assert.EqualValues(t, i, v.VersionNumber)
		assert.Equal(t, digest, v.FileHash)
		assert.Equal(t, prev, v.ChangeMetadata.Data().PreviousHash)
		prev = digest
	}

	got, err := env.store.Files.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 4, got.CurrentVersion)
	assert.Equal(t, prev, got.FileHash)

	versions, err := env.archive.ListVersions(ctx, f.ID)
	require.NoError(t, err)
	require.Len(t, versions, 4)
	assert.Equal(t, f.FileHash, versions[0].FileHash, "old digest retained in history")

	p, err := env.meta.GetPreservation(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, prev, p.DigestValue)
	assert.Equal(t, model.EventModification, p.Events[len(p.Events)-1].Type)
	assert.Equal(t, "user:5", p.Events[len(p.Events)-1].Agent)

	entries, _, err := env.audit.Search(ctx, AuditCriteria{ResourceID: f.ID, Action: model.ActionUpdate})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestArchiveService_CreateVersionConcurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.register(t, "shared.txt", "base")

	const n = 8
	paths := make([]string, n)
	for i := range paths {
		paths[i], _ = env.writeContent(t, fmt.Sprintf("shared-%d.txt", i), fmt.Sprintf("edit %d", i))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := env.archive.CreateVersion(ctx, VersionInput{FileID: f.ID, Path: paths[i]})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers = append(numbers, int(v.VersionNumber))
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Ints(numbers)
	want := make([]int, n)
	for i := range want {
		want[i] = i + 2
	}
	assert.Equal(t, want, numbers)
}

func TestArchiveService_CreateVersionErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.register(t, "e.txt", "stable")
	path, _ := env.writeContent(t, "e-same.txt", "stable")

	_, err := env.archive.CreateVersion(ctx, VersionInput{FileID: f.ID, Path: path})
	assert.ErrorIs(t, err, apperr.ErrValidation, "identical content")

	other, _ := env.writeContent(t, "e-2.txt", "changed")
	_, err = env.archive.CreateVersion(ctx, VersionInput{FileID: "00000000-0000-0000-0000-000000000abc", Path: other})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, env.archive.DeleteFile(ctx, f.ID, nil, "cleanup", ClientInfo{}))
	_, err = env.archive.CreateVersion(ctx, VersionInput{FileID: f.ID, Path: other})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestArchiveService_SoftDeleteIsReversible(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.register(t, "keep.txt", "keep me")

	before, err := env.store.Files.GetByID(ctx, f.ID)
	require.NoError(t, err)

	require.NoError(t, env.archive.DeleteFile(ctx, f.ID, int64p(1), "duplicate upload", ClientInfo{}))
	mid, err := env.archive.GetFile(ctx, f.ID, nil, ClientInfo{})
	require.NoError(t, err, "deleted file is still retrievable")
	assert.True(t, mid.File.Deleted)
	assert.NotNil(t, mid.File.DeletedAt)

	assert.ErrorIs(t, env.archive.DeleteFile(ctx, f.ID, nil, "", ClientInfo{}), apperr.ErrConflict)

	require.NoError(t, env.archive.RestoreFile(ctx, f.ID, int64p(1), ClientInfo{}))
	after, err := env.store.Files.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Deleted, after.Deleted)
	assert.Equal(t, before.IsAccessible, after.IsAccessible)
	assert.Nil(t, after.DeletedAt)

	assert.ErrorIs(t, env.archive.RestoreFile(ctx, f.ID, nil, ClientInfo{}), apperr.ErrConflict)

	entries, _, err := env.audit.QueryByResource(ctx, f.ID, 0, 0)
	require.NoError(t, err)
	var actions []model.AuditAction
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	// от новых к старым: UPDATE (restore), READ, DELETE, CREATE
	assert.Equal(t, []model.AuditAction{model.ActionUpdate, model.ActionRead, model.ActionDelete, model.ActionCreate}, actions)
	assert.Equal(t, "duplicate upload", entries[2].Reason)
}

func TestArchiveService_DownloadRecordsAccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	f := env.register(t, "dl.txt", "download me")

	require.NoError(t, env.archive.RecordDownload(ctx, f.ID, int64p(8), ClientInfo{IPAddress: "127.0.0.1"}))

	entries, _, err := env.audit.Search(ctx, AuditCriteria{ResourceID: f.ID, Action: model.ActionDownload})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	p, err := env.meta.GetPreservation(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EventAccess, p.Events[len(p.Events)-1].Type)

	require.NoError(t, env.archive.DeleteFile(ctx, f.ID, nil, "", ClientInfo{}))
	assert.ErrorIs(t, env.archive.RecordDownload(ctx, f.ID, nil, ClientInfo{}), apperr.ErrConflict)
	assert.ErrorIs(t, env.archive.RecordDownload(ctx, "00000000-0000-0000-0000-0000000000ff", nil, ClientInfo{}), apperr.ErrNotFound)
}

func TestArchiveService_SearchAndStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i, name := range []string{"alpha-report.txt", "beta-notes.txt", "gamma-report.txt"} {
		path, _ := env.writeContent(t, name, name)
		_, err := env.archive.RegisterFile(ctx, RegisterInput{
			Path:        path,
			Category:    []string{"a", "b", "a"}[i],
			OwnerID:     int64p(int64(i % 2)),
			Descriptive: DescriptiveInput{Creator: strp([]string{"Ann", "Ben", "Ann"}[i])},
		})
		require.NoError(t, err)
	}

	res, err := env.archive.SearchFiles(ctx, SearchQuery{Text: "report", SortBy: "popularity"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Total)
	assert.Equal(t, DefaultSearchLimit, res.Limit)

	res, err = env.archive.SearchFiles(ctx, SearchQuery{SortBy: "date", SortOrder: "asc", Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, MaxSearchLimit, res.Limit)
	require.Len(t, res.Files, 3)
	assert.Equal(t, "alpha-report.txt", res.Files[0].File.Filename)

	res, err = env.archive.SearchFiles(ctx, SearchQuery{Creator: "ann", Category: "a"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Total)
	assert.Equal(t, "Ann", res.Files[0].Creator)

	_, err = env.archive.SearchFiles(ctx, SearchQuery{AccessLevel: "galactic"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	st, err := env.archive.GetFileStatistics(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, st.TotalFiles)
	assert.EqualValues(t, 2, st.Categories)
	assert.EqualValues(t, 2, st.Contributors)
}

func TestContentStore_Resolve(t *testing.T) {
	c := NewContentStore("/srv/archive")
	p, err := c.Resolve("a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "/srv/archive/a/b.txt", p)

	p, err = c.Resolve("/srv/archive/x/../y.bin")
	require.NoError(t, err)
	assert.Equal(t, "/srv/archive/y.bin", p)

	for _, bad := range []string{"/tmp/x", "../etc/passwd", "a/../../b", "/srv/archive-other/z"} {
		_, err := c.Resolve(bad)
		assert.ErrorIs(t, err, apperr.ErrValidation, bad)
	}

	_, err = NewContentStore("").Resolve("a.txt")
	assert.ErrorIs(t, err, apperr.ErrConfiguration)

	dir := t.TempDir()
	_, err = NewContentStore(dir).Size(".")
	assert.ErrorIs(t, err, apperr.ErrIO)
}

func TestContentStore_SymlinkOutsideRootRejected(t *testing.T) {
	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o600))

	dir := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(dir, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	_, _, err := NewContentStore(dir).Digest("link.txt")
	assert.ErrorIs(t, err, apperr.ErrIO)
}

func TestArchiveService_RejectsPathOutsideRoot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	outside := filepath.Join(t.TempDir(), "outside.txt")
	require.NoError(t, os.WriteFile(outside, []byte("not archived"), 0o600))

	_, err := env.archive.RegisterFile(ctx, RegisterInput{Path: outside})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	// с готовым дайджестом путь проверяется так же
	_, err = env.archive.RegisterFile(ctx, RegisterInput{Path: "../outside.txt", Digest: hashing.DigestBytes([]byte("x"))})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	f := env.register(t, "inside.txt", "v1")
	_, err = env.archive.CreateVersion(ctx, VersionInput{FileID: f.ID, Path: outside})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
