package odb

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// Git reads blobs out of a git object storage, loose or packed.
type Git struct {
	storer storer.EncodedObjectStorer
}

func NewGit(s storer.EncodedObjectStorer) *Git {
	return &Git{storer: s}
}

func (g *Git) Find(ctx context.Context, id plumbing.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	obj, err := g.storer.EncodedObject(plumbing.BlobObject, id)
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("reading object %s: %w", id, err)
	}

	r, err := obj.Reader()
	if err != nil {
		return nil, fmt.Errorf("opening object %s: %w", id, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", id, err)
	}

	return data, nil
}
