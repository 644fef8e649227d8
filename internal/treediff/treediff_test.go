package treediff

import (
	"context"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tigdiff/internal/report"
	"tigdiff/internal/rewrites"
)

type testRepo struct {
	t    *testing.T
	repo *git.Repository
	fs   billy.Filesystem
	wt   *git.Worktree
}

func newTestRepo(t *testing.T) *testRepo {
	fs := memfs.New()
	repo, err := git.Init(memory.NewStorage(), fs)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	return &testRepo{t: t, repo: repo, fs: fs, wt: wt}
}

func (r *testRepo) write(path, content string) {
	require.NoError(r.t, util.WriteFile(r.fs, path, []byte(content), 0644))
	_, err := r.wt.Add(path)
	require.NoError(r.t, err)
}

func (r *testRepo) remove(path string) {
	_, err := r.wt.Remove(path)
	require.NoError(r.t, err)
}

func (r *testRepo) commit(msg string) plumbing.Hash {
	hash, err := r.wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(r.t, err)
	return hash
}

func (r *testRepo) tree(commit plumbing.Hash) *object.Tree {
	c, err := r.repo.CommitObject(commit)
	require.NoError(r.t, err)
	tree, err := c.Tree()
	require.NoError(r.t, err)
	return tree
}

// history builds three commits:
//
//	1: a.txt, keep.txt, vendor/lib.js
//	2: a.txt renamed to b.txt with an edit, keep.txt modified and copied,
//	   c.txt and vendor/lib2.js added
//	3: dup.txt added with the content of the unchanged c.txt
func history(t *testing.T) (*testRepo, []plumbing.Hash) {
	r := newTestRepo(t)

	r.write("a.txt", "first\nsecond\n")
	r.write("keep.txt", "keep\n")
	r.write("vendor/lib.js", "lib\n")
	c1 := r.commit("initial")

	r.remove("a.txt")
	r.write("b.txt", "firt\nsecond\n")
	r.write("c.txt", "second\nunrelated\n")
	r.write("keep.txt", "keep\nmore\n")
	r.write("copy.txt", "keep\nmore\n")
	r.write("vendor/lib2.js", "lib2\n")
	c2 := r.commit("rework")

	r.write("dup.txt", "second\nunrelated\n")
	c3 := r.commit("duplicate")

	return r, []plumbing.Hash{c1, c2, c3}
}

func paths(entries []report.Entry) []string {
	var out []string
	for _, e := range entries {
		out = append(out, e.Path)
	}
	return out
}

func find(t *testing.T, entries []report.Entry, path string) report.Entry {
	t.Helper()
	for _, e := range entries {
		if e.Path == path {
			return e
		}
	}
	t.Fatalf("no entry for %s", path)
	return report.Entry{}
}

func TestChanges(t *testing.T) {
	r, commits := history(t)
	ctx := context.Background()

	records, err := Changes(ctx, r.tree(commits[0]), r.tree(commits[1]), Filter{})
	require.NoError(t, err)

	kinds := map[string]rewrites.ChangeKind{}
	for _, rec := range records {
		kinds[rec.Location] = rec.Change.Kind
		assert.Equal(t, filemode.Regular, rec.Change.Mode, rec.Location)
	}
	assert.Equal(t, map[string]rewrites.ChangeKind{
		"a.txt":          rewrites.Deletion,
		"b.txt":          rewrites.Addition,
		"c.txt":          rewrites.Addition,
		"copy.txt":       rewrites.Addition,
		"keep.txt":       rewrites.Modification,
		"vendor/lib2.js": rewrites.Addition,
	}, kinds)

	t.Run("modifications keep the previous blob", func(t *testing.T) {
		for _, rec := range records {
			if rec.Location != "keep.txt" {
				continue
			}
			assert.NotEqual(t, rec.Change.ID, rec.Change.PreviousID)
			assert.False(t, rec.Change.PreviousID.IsZero())
		}
	})

	t.Run("nil stands for the empty tree", func(t *testing.T) {
		records, err := Changes(ctx, nil, r.tree(commits[0]), Filter{})
		require.NoError(t, err)
		require.Len(t, records, 3)
		for _, rec := range records {
			assert.Equal(t, rewrites.Addition, rec.Change.Kind)
		}
	})

	t.Run("filtered", func(t *testing.T) {
		records, err := Changes(ctx, r.tree(commits[0]), r.tree(commits[1]), Filter{SkipPrefixes: []string{"b."}, SkipVendored: true})
		require.NoError(t, err)
		for _, rec := range records {
			assert.NotEqual(t, "b.txt", rec.Location)
			assert.NotEqual(t, "vendor/lib2.js", rec.Location)
		}
		assert.Len(t, records, 4)
	})
}

func TestFilter(t *testing.T) {
	f := Filter{SkipPrefixes: []string{"docs/", ""}, SkipVendored: true}
	assert.True(t, f.Skip("docs/readme.md"))
	assert.True(t, f.Skip("vendor/github.com/x/y.go"))
	assert.True(t, f.Skip("node_modules/left-pad/index.js"))
	assert.False(t, f.Skip("internal/rewrites/tracker.go"))

	assert.False(t, Filter{}.Skip("vendor/github.com/x/y.go"))
}

func TestTreeSources(t *testing.T) {
	r, commits := history(t)

	var got []string
	err := TreeSources(context.Background(), r.tree(commits[0]), Filter{SkipVendored: true})(func(c rewrites.Change, location string) {
		assert.Equal(t, rewrites.Modification, c.Kind)
		got = append(got, location)
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "keep.txt"}, got)

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := TreeSources(ctx, r.tree(commits[0]), Filter{})(func(rewrites.Change, string) {})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("no tree", func(t *testing.T) {
		err := TreeSources(context.Background(), nil, Filter{})(func(rewrites.Change, string) {
			t.Fatal("nothing to push")
		})
		assert.NoError(t, err)
	})
}

func TestDetect(t *testing.T) {
	r, commits := history(t)
	ctx := context.Background()

	t.Run("renames and copies", func(t *testing.T) {
		d := NewDetector(r.repo, DetectorOptions{Filter: Filter{SkipVendored: true}})
		rep, err := d.Detect(ctx, "HEAD~2", "HEAD~1", rewrites.Rewrites{
			Percentage: rewrites.Percent(0.5),
			Copies:     &rewrites.Copies{Source: rewrites.FromModifiedFiles},
			Limit:      1000,
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"b.txt", "c.txt", "copy.txt", "keep.txt"}, paths(rep.Entries))
		assert.Equal(t, "HEAD~2", rep.OldRevision)
		assert.Equal(t, r.tree(commits[0]).Hash.String(), rep.OldTree)
		assert.Equal(t, r.tree(commits[1]).Hash.String(), rep.NewTree)
		assert.NotEmpty(t, rep.ID)

		renamed := find(t, rep.Entries, "b.txt")
		assert.Equal(t, report.Renamed, renamed.Status)
		assert.Equal(t, "a.txt", renamed.SourcePath)
		assert.InDelta(t, 0.53846157, renamed.Similarity, 1e-6)
		require.NotNil(t, renamed.Stats)
		assert.Equal(t, uint32(1), renamed.Stats.Removals)

		copied := find(t, rep.Entries, "copy.txt")
		assert.Equal(t, report.Copied, copied.Status)
		assert.Equal(t, "keep.txt", copied.SourcePath)
		assert.Equal(t, float32(1), copied.Similarity)
		assert.Nil(t, copied.Stats)

		assert.Equal(t, report.Added, find(t, rep.Entries, "c.txt").Status)
		assert.Equal(t, report.Modified, find(t, rep.Entries, "keep.txt").Status)

		assert.Equal(t, 1, rep.Outcome.SimilarityChecks)
		assert.Equal(t, report.Summary{Added: 1, Modified: 1, Renamed: 1, Copied: 1}, rep.Summary())
	})

	t.Run("identity only", func(t *testing.T) {
		d := NewDetector(r.repo, DetectorOptions{})
		rep, err := d.Detect(ctx, commits[0].String(), commits[1].String(), rewrites.Rewrites{})
		require.NoError(t, err)

		assert.Equal(t, []string{"a.txt", "b.txt", "c.txt", "copy.txt", "keep.txt", "vendor/lib2.js"}, paths(rep.Entries))
		assert.Equal(t, report.Deleted, find(t, rep.Entries, "a.txt").Status)
		assert.Equal(t, report.Modified, find(t, rep.Entries, "keep.txt").Status, "reported without being tracked")
		assert.Equal(t, report.Summary{Added: 4, Deleted: 1, Modified: 1}, rep.Summary())
	})

	t.Run("copies from all sources", func(t *testing.T) {
		d := NewDetector(r.repo, DetectorOptions{})
		rep, err := d.Detect(ctx, "HEAD~1", "HEAD", rewrites.Rewrites{
			Copies: &rewrites.Copies{Source: rewrites.FromModifiedFilesAndAllSources},
		})
		require.NoError(t, err)

		require.Len(t, rep.Entries, 1)
		assert.Equal(t, report.Copied, rep.Entries[0].Status)
		assert.Equal(t, "dup.txt", rep.Entries[0].Path)
		assert.Equal(t, "c.txt", rep.Entries[0].SourcePath)
	})

	t.Run("copies from modified files only", func(t *testing.T) {
		d := NewDetector(r.repo, DetectorOptions{})
		rep, err := d.Detect(ctx, "HEAD~1", "HEAD", rewrites.Rewrites{
			Copies: &rewrites.Copies{Source: rewrites.FromModifiedFiles},
		})
		require.NoError(t, err)

		require.Len(t, rep.Entries, 1)
		assert.Equal(t, report.Added, rep.Entries[0].Status)
	})

	t.Run("from the empty tree", func(t *testing.T) {
		d := NewDetector(r.repo, DetectorOptions{})
		rep, err := d.Detect(ctx, "", commits[0].String(), rewrites.DefaultRewrites())
		require.NoError(t, err)
		assert.Equal(t, EmptyTree, rep.OldTree)
		assert.Equal(t, report.Summary{Added: 3}, rep.Summary())
	})

	t.Run("limit", func(t *testing.T) {
		d := NewDetector(r.repo, DetectorOptions{})
		rep, err := d.Detect(ctx, "HEAD~2", "HEAD~1", rewrites.Rewrites{Percentage: rewrites.Percent(0.5), Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 4, rep.Outcome.RenameChecksSkipped, "one deletion against four additions")
		assert.Equal(t, report.Deleted, find(t, rep.Entries, "a.txt").Status)
	})

	t.Run("tree revisions", func(t *testing.T) {
		d := NewDetector(r.repo, DetectorOptions{})
		oldTree := r.tree(commits[1]).Hash.String()
		newTree := r.tree(commits[2]).Hash.String()
		rep, err := d.Detect(ctx, oldTree, newTree, rewrites.Rewrites{})
		require.NoError(t, err)
		assert.Equal(t, []string{"dup.txt"}, paths(rep.Entries))
	})

	t.Run("unknown revision", func(t *testing.T) {
		d := NewDetector(r.repo, DetectorOptions{})
		_, err := d.Detect(ctx, "no-such-branch", "HEAD", rewrites.Rewrites{})
		assert.ErrorIs(t, err, ErrRevision)
	})

	t.Run("invalid options", func(t *testing.T) {
		d := NewDetector(r.repo, DetectorOptions{})
		_, err := d.Detect(ctx, "HEAD~1", "HEAD", rewrites.Rewrites{Percentage: rewrites.Percent(2)})
		assert.ErrorIs(t, err, rewrites.ErrInvalidRewrites)
	})
}
