package treediff

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/object"

	"tigdiff/internal/rewrites"
)

// TreeSources offers every file of tree as a copy source, like git's
// --find-copies-harder. Files are enumerated only if the tracker asks.
func TreeSources(ctx context.Context, tree *object.Tree, filter Filter) rewrites.SourcesFunc {
	return func(push func(rewrites.Change, string)) error {
		if tree == nil {
			return nil
		}

		err := tree.Files().ForEach(func(f *object.File) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if filter.Skip(f.Name) {
				return nil
			}
			push(rewrites.Change{
				Kind: rewrites.Modification,
				ID:   f.Hash,
				Mode: f.Mode,
			}, f.Name)
			return nil
		})
		if err != nil {
			return fmt.Errorf("walking tree %s: %w", tree.Hash, err)
		}
		return nil
	}
}
