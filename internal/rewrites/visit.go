package rewrites

import (
	"context"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"

	"tigdiff/internal/blob"
	"tigdiff/internal/odb"
)

// Destination is a change reported by Emit
type Destination struct {
	Change   Change
	Location string
}

// SourceKind tells how a destination relates to its source
type SourceKind int

const (
	// Rename sources are deletions and match at most one destination
	Rename SourceKind = iota
	// Copy sources stay in place and may match any number of destinations
	Copy
)

func (k SourceKind) String() string {
	if k == Copy {
		return "copy"
	}
	return "rename"
}

// Source is where the content of a destination came from
type Source struct {
	Kind     SourceKind
	ID       plumbing.Hash
	Mode     filemode.FileMode
	Location string
	Change   Change
	// Nil when the content is identical
	Diff *blob.LineStats
}

// Action tells Emit whether to go on
type Action int

const (
	Continue Action = iota
	Cancel
)

// Visitor receives every destination exactly once, with its source if one
// was found.
type Visitor func(dst Destination, src *Source) Action

// SourcesFunc enumerates additional copy sources by calling push for each.
// It is called at most once per Emit.
type SourcesFunc func(push func(change Change, location string)) error

// Differ compares the content of two blobs. A nil result without an error
// means the two cannot be compared.
type Differ interface {
	Similarity(ctx context.Context, objects odb.Finder, old, new blob.Resource) (*blob.LineStats, error)
}
