// internal/treediff/detect.go
package treediff

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"tigdiff/internal/blob"
	"tigdiff/internal/odb"
	"tigdiff/internal/report"
	"tigdiff/internal/rewrites"
)

// ErrRevision is returned when a revision cannot be turned into a tree
var ErrRevision = errors.New("resolving revision")

// EmptyTree is the id git gives the tree without entries
const EmptyTree = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// DetectorOptions configures a Detector
type DetectorOptions struct {
	// Where blobs are read from. Defaults to the repository's object storage.
	Objects odb.Finder
	// Defaults to a blob.Platform with default options
	Differ rewrites.Differ
	Filter Filter
	Logger *zap.Logger
	// Recorded on every report
	Repository string
}

// Detector finds renames and copies between two revisions of a repository
type Detector struct {
	repo    *git.Repository
	name    string
	objects odb.Finder
	differ  rewrites.Differ
	filter  Filter
	logger  *zap.Logger
}

func NewDetector(repo *git.Repository, opts DetectorOptions) *Detector {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Objects == nil {
		opts.Objects = odb.NewGit(repo.Storer)
	}
	if opts.Differ == nil {
		opts.Differ = blob.NewPlatform(blob.Options{Logger: opts.Logger})
	}

	return &Detector{
		repo:    repo,
		name:    opts.Repository,
		objects: opts.Objects,
		differ:  opts.Differ,
		filter:  opts.Filter,
		logger:  opts.Logger,
	}
}

// Detect compares the trees of oldRev and newRev. An empty revision stands
// for the empty tree.
func (d *Detector) Detect(ctx context.Context, oldRev, newRev string, rw rewrites.Rewrites) (*report.Report, error) {
	if err := rw.Validate(); err != nil {
		return nil, err
	}

	oldTree, err := d.resolveTree(oldRev)
	if err != nil {
		return nil, err
	}
	newTree, err := d.resolveTree(newRev)
	if err != nil {
		return nil, err
	}

	r, err := d.Diff(ctx, oldTree, newTree, rw)
	if err != nil {
		return nil, err
	}
	r.OldRevision = oldRev
	r.NewRevision = newRev
	return r, nil
}

// Diff compares two trees. Either may be nil for the empty tree.
func (d *Detector) Diff(ctx context.Context, oldTree, newTree *object.Tree, rw rewrites.Rewrites) (*report.Report, error) {
	start := time.Now()

	records, err := Changes(ctx, oldTree, newTree, d.filter)
	if err != nil {
		return nil, err
	}

	tracker := rewrites.NewTracker(rw, rewrites.WithLogger(d.logger))
	var entries []report.Entry
	for _, rec := range records {
		if !tracker.TryPushChange(rec.Change, rec.Location) {
			entries = append(entries, entryFor(rewrites.Destination{Change: rec.Change, Location: rec.Location}, nil))
		}
	}

	var sources rewrites.SourcesFunc
	if rw.Copies != nil && rw.Copies.Source == rewrites.FromModifiedFilesAndAllSources {
		sources = TreeSources(ctx, oldTree, d.filter)
	}

	outcome, err := tracker.Emit(ctx, func(dst rewrites.Destination, src *rewrites.Source) rewrites.Action {
		if ctx.Err() != nil {
			return rewrites.Cancel
		}
		entries = append(entries, entryFor(dst, src))
		return rewrites.Continue
	}, d.differ, d.objects, sources)
	if err != nil {
		return nil, fmt.Errorf("detecting rewrites: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})

	r := &report.Report{
		ID:         uuid.New().String(),
		Repository: d.name,
		OldTree:    treeID(oldTree),
		NewTree:    treeID(newTree),
		Outcome:    outcome,
		Entries:    entries,
		CreatedAt:  time.Now(),
	}

	d.logger.Debug("rewrites detected",
		zap.String("old_tree", r.OldTree),
		zap.String("new_tree", r.NewTree),
		zap.Int("changes", len(records)),
		zap.Int("similarity_checks", outcome.SimilarityChecks),
		zap.Bool("limit_reached", outcome.LimitReached()),
		zap.Duration("took", time.Since(start)))

	return r, nil
}

func (d *Detector) resolveTree(rev string) (*object.Tree, error) {
	if rev == "" {
		return nil, nil
	}

	// Revisions only resolve to commits, so tree ids are looked up directly.
	if plumbing.IsHash(rev) {
		if tree, err := d.repo.TreeObject(plumbing.NewHash(rev)); err == nil {
			return tree, nil
		}
	}

	hash, err := d.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrRevision, rev, err)
	}

	commit, err := d.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrRevision, rev, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("%w %q: reading tree: %v", ErrRevision, rev, err)
	}
	return tree, nil
}

func treeID(t *object.Tree) string {
	if t == nil {
		return EmptyTree
	}
	return t.Hash.String()
}

func entryFor(dst rewrites.Destination, src *rewrites.Source) report.Entry {
	e := report.Entry{
		Path: dst.Location,
		ID:   dst.Change.ID.String(),
		Mode: dst.Change.Mode.String(),
	}

	switch dst.Change.Kind {
	case rewrites.Addition:
		e.Status = report.Added
	case rewrites.Deletion:
		e.Status = report.Deleted
	default:
		e.Status = report.Modified
	}

	if src == nil {
		return e
	}

	e.Status = report.Renamed
	if src.Kind == rewrites.Copy {
		e.Status = report.Copied
	}
	e.SourcePath = src.Location
	e.SourceID = src.ID.String()
	e.Similarity = 1
	if src.Diff != nil {
		e.Similarity = src.Diff.Similarity
		e.Stats = src.Diff
	}
	return e
}
