// internal/rewrites/tracker.go
package rewrites

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"go.uber.org/zap"

	"tigdiff/internal/blob"
	"tigdiff/internal/odb"
)

var (
	// ErrSources wraps failures of a SourcesFunc
	ErrSources = errors.New("enumerating copy sources")
	// ErrAlreadyEmitted is returned when Emit is called a second time
	ErrAlreadyEmitted = errors.New("tracker already emitted")
)

// item is a change queued for matching. Items are never removed; consumed
// renames and external sources are flagged instead.
type item struct {
	change   Change
	location string
	// supplied by a SourcesFunc, only ever a copy source
	external bool
	// deletion already used as a rename source
	consumed bool
	// match found for an addition
	source *Source
}

func (it *item) resource() blob.Resource {
	return blob.Resource{ID: it.change.ID, Mode: it.change.Mode, Location: it.location}
}

// Tracker pairs deletions and additions into renames, and modified or
// pre-existing files with additions into copies.
//
// Changes are pushed with TryPushChange while a tree diff is walked, then
// Emit runs the matching once and reports every change. A Tracker is not
// safe for concurrent use.
type Tracker struct {
	rewrites Rewrites
	items    []*item
	byID     map[plumbing.Hash][]int
	emitted  bool
	logger   *zap.Logger
}

// Option configures a Tracker
type Option func(*Tracker)

// WithLogger sets the logger used for debug output
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTracker creates a tracker for one diff
func NewTracker(rewrites Rewrites, opts ...Option) *Tracker {
	t := &Tracker{
		rewrites: rewrites,
		byID:     make(map[plumbing.Hash][]int),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TryPushChange queues change for matching and reports whether it did so.
// Changes that are not queued must be reported by the caller without a
// source: entries that are not blobs, and modifications when copies are not
// tracked.
func (t *Tracker) TryPushChange(change Change, location string) bool {
	if !isBlob(change.Mode) {
		return false
	}
	if change.Kind == Modification && t.rewrites.Copies == nil {
		return false
	}

	t.push(change, location, false)
	return true
}

func (t *Tracker) push(change Change, location string, external bool) {
	t.byID[change.ID] = append(t.byID[change.ID], len(t.items))
	t.items = append(t.items, &item{
		change:   change,
		location: location,
		external: external,
	})
}

// Emit matches the queued changes and passes each of them to visit.
// Additions and modifications are reported in the order they were pushed,
// additions with their source if one was found. Deletions not used by a
// rename follow once every addition has been resolved.
//
// Identical content is paired up for all additions before any content is
// compared, so an identical source always beats a merely similar one. The
// comparisons for an addition happen right before it is visited, and
// returning Cancel stops them along with the emission.
//
// differ and objects are only used when similarity matching is configured.
// sources is only called when copies are searched in all sources and some
// additions found no identical source among the modified files.
//
// Emit may only be called once.
func (t *Tracker) Emit(ctx context.Context, visit Visitor, differ Differ, objects odb.Finder, sources SourcesFunc) (Outcome, error) {
	out := Outcome{Options: t.rewrites}
	if t.emitted {
		return out, ErrAlreadyEmitted
	}
	t.emitted = true

	if err := t.matchIdentities(sources); err != nil {
		return out, err
	}
	passes, err := t.similarityPasses(&out, differ)
	if err != nil {
		return out, err
	}

	for _, it := range t.items {
		if it.external || it.change.Kind == Deletion {
			continue
		}
		if it.change.Kind == Addition && it.source == nil {
			if err := t.resolve(ctx, &out, it, passes, differ, objects); err != nil {
				return out, err
			}
		}
		if !t.report(visit, it) {
			return out, nil
		}
	}

	for _, it := range t.items {
		if it.external || it.change.Kind != Deletion || it.consumed {
			continue
		}
		if !t.report(visit, it) {
			return out, nil
		}
	}
	return out, nil
}

func (t *Tracker) report(visit Visitor, it *item) bool {
	if visit(Destination{Change: it.change, Location: it.location}, it.source) == Cancel {
		t.logger.Debug("emission cancelled", zap.String("location", it.location))
		return false
	}
	return true
}

// pass is one kind of match: which pool candidates come from, and whether
// identities or contents are compared.
type pass struct {
	kind       SourceKind
	similarity bool
	// restrict copy candidates to those from the SourcesFunc
	external bool
	// minimum ratio for similarity passes
	threshold float32
}

func (p pass) String() string {
	s := p.kind.String()
	if p.similarity {
		s += " similarity"
	} else {
		s += " identity"
	}
	if p.external {
		s += " (all sources)"
	}
	return s
}

// matchIdentities pairs additions with identical sources: deletions first,
// then modified files, then whatever sources supplies. sources is pulled
// only when the modified files left additions without a match.
func (t *Tracker) matchIdentities(sources SourcesFunc) error {
	t.runIdentity(pass{kind: Rename})

	copies := t.rewrites.Copies
	if copies == nil {
		return nil
	}
	t.runIdentity(pass{kind: Copy})

	if copies.Source != FromModifiedFilesAndAllSources || sources == nil || t.unmatched() == 0 {
		return nil
	}

	before := len(t.items)
	err := sources(func(change Change, location string) {
		if isBlob(change.Mode) {
			t.push(change, location, true)
		}
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSources, err)
	}
	t.logger.Debug("pulled copy sources", zap.Int("count", len(t.items)-before))

	t.runIdentity(pass{kind: Copy, external: true})
	return nil
}

func (t *Tracker) runIdentity(p pass) {
	for _, dst := range t.destinations() {
		t.matchIdentity(p, dst)
	}
}

// similarityPasses returns the similarity passes to try for each remaining
// addition, in order. A pass whose estimated number of comparisons exceeds
// the limit is dropped as a whole and the estimate is counted as skipped.
func (t *Tracker) similarityPasses(out *Outcome, differ Differ) ([]pass, error) {
	var wanted []pass
	if needsSimilarity(t.rewrites.Percentage) {
		wanted = append(wanted, pass{kind: Rename, similarity: true, threshold: *t.rewrites.Percentage})
	}
	if c := t.rewrites.Copies; c != nil && needsSimilarity(c.Percentage) {
		wanted = append(wanted,
			pass{kind: Copy, similarity: true, threshold: *c.Percentage},
			pass{kind: Copy, similarity: true, external: true, threshold: *c.Percentage},
		)
	}

	dsts := t.unmatched()
	if dsts == 0 {
		return nil, nil
	}

	var passes []pass
	for _, p := range wanted {
		cands := len(t.candidates(p))
		if cands == 0 {
			continue
		}

		if estimate := cands * dsts; t.rewrites.Limit > 0 && estimate > t.rewrites.Limit {
			if p.kind == Rename {
				out.RenameChecksSkipped += estimate
			} else {
				out.CopyChecksSkipped += estimate
			}
			t.logger.Debug("similarity pass skipped",
				zap.Stringer("pass", p),
				zap.Int("estimate", estimate),
				zap.Int("limit", t.rewrites.Limit))
			continue
		}
		passes = append(passes, p)
	}

	if len(passes) > 0 && differ == nil {
		return nil, fmt.Errorf("%s pass: no differ configured", passes[0])
	}
	return passes, nil
}

// resolve compares dst with the candidates of each pass in turn until one is
// similar enough.
func (t *Tracker) resolve(ctx context.Context, out *Outcome, dst *item, passes []pass, differ Differ, objects odb.Finder) error {
	if !compatibleForSimilarity(dst) {
		return nil
	}
	for _, p := range passes {
		found, err := t.matchSimilarity(ctx, out, p, dst, differ, objects)
		if err != nil || found {
			return err
		}
	}
	return nil
}

func (t *Tracker) matchIdentity(p pass, dst *item) {
	for _, idx := range t.byID[dst.change.ID] {
		cand := t.items[idx]
		if !t.eligible(p, cand) || !compatible(cand.change.Mode, dst.change.Mode) {
			continue
		}
		t.assign(p, dst, cand, nil)
		return
	}
}

func (t *Tracker) matchSimilarity(ctx context.Context, out *Outcome, p pass, dst *item, differ Differ, objects odb.Finder) (bool, error) {
	for _, cand := range t.items {
		if !t.eligible(p, cand) || !compatibleForSimilarity(cand) {
			continue
		}

		stats, err := differ.Similarity(ctx, objects, cand.resource(), dst.resource())
		if err != nil {
			return false, fmt.Errorf("comparing %s with %s: %w", cand.location, dst.location, err)
		}
		// binary or oversized, nothing was compared
		if stats == nil {
			continue
		}
		out.SimilarityChecks++
		if stats.Similarity < p.threshold {
			continue
		}

		t.assign(p, dst, cand, stats)
		return true, nil
	}
	return false, nil
}

// compatibleForSimilarity excludes symlinks, whose targets only match by
// identity.
func compatibleForSimilarity(it *item) bool {
	return it.change.Mode != filemode.Symlink
}

func (t *Tracker) assign(p pass, dst, src *item, stats *blob.LineStats) {
	if p.kind == Rename {
		src.consumed = true
	}
	dst.source = &Source{
		Kind:     p.kind,
		ID:       src.change.ID,
		Mode:     src.change.Mode,
		Location: src.location,
		Change:   src.change,
		Diff:     stats,
	}
}

// eligible reports whether it belongs to the candidate pool of p.
func (t *Tracker) eligible(p pass, it *item) bool {
	switch {
	case p.kind == Rename:
		return !it.external && !it.consumed && it.change.Kind == Deletion
	case p.external:
		return it.external
	default:
		return !it.external && it.change.Kind == Modification
	}
}

func (t *Tracker) candidates(p pass) []*item {
	var out []*item
	for _, it := range t.items {
		if t.eligible(p, it) {
			out = append(out, it)
		}
	}
	return out
}

// destinations returns the additions still without a source, in push order.
func (t *Tracker) destinations() []*item {
	var out []*item
	for _, it := range t.items {
		if !it.external && it.change.Kind == Addition && it.source == nil {
			out = append(out, it)
		}
	}
	return out
}

func (t *Tracker) unmatched() int {
	return len(t.destinations())
}
