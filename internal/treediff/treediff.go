// internal/treediff/treediff.go
package treediff

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"tigdiff/internal/rewrites"
)

// Record is one change between two trees
type Record struct {
	Change   rewrites.Change
	Location string
}

// Changes lists the per-path changes between from and to. A nil tree stands
// for the empty tree. go-git's own rename detection stays off so every
// addition and deletion is reported as such.
func Changes(ctx context.Context, from, to *object.Tree, filter Filter) ([]Record, error) {
	if from == nil {
		from = &object.Tree{}
	}
	if to == nil {
		to = &object.Tree{}
	}

	changes, err := object.DiffTreeWithOptions(ctx, from, to, &object.DiffTreeOptions{})
	if err != nil {
		return nil, fmt.Errorf("diffing trees: %w", err)
	}

	records := make([]Record, 0, len(changes))
	for _, c := range changes {
		action, err := c.Action()
		if err != nil {
			return nil, fmt.Errorf("classifying change: %w", err)
		}

		var rec Record
		switch action {
		case merkletrie.Insert:
			rec = Record{
				Change: rewrites.Change{
					Kind: rewrites.Addition,
					ID:   c.To.TreeEntry.Hash,
					Mode: c.To.TreeEntry.Mode,
				},
				Location: c.To.Name,
			}
		case merkletrie.Delete:
			rec = Record{
				Change: rewrites.Change{
					Kind: rewrites.Deletion,
					ID:   c.From.TreeEntry.Hash,
					Mode: c.From.TreeEntry.Mode,
				},
				Location: c.From.Name,
			}
		case merkletrie.Modify:
			rec = Record{
				Change: rewrites.Change{
					Kind:         rewrites.Modification,
					ID:           c.To.TreeEntry.Hash,
					Mode:         c.To.TreeEntry.Mode,
					PreviousID:   c.From.TreeEntry.Hash,
					PreviousMode: c.From.TreeEntry.Mode,
				},
				Location: c.To.Name,
			}
		default:
			return nil, fmt.Errorf("unexpected change action %s", action)
		}

		if filter.Skip(rec.Location) {
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}
