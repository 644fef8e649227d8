// Package odb provides access to blob content by object id.
//
// Finders compose: a Cache in front of a Store reading through to a Git
// repository is the usual production stack, while Memory backs tests.
package odb

import (
	"context"
	"errors"

	"github.com/go-git/go-git/v5/plumbing"
)

var (
	ErrNotFound = errors.New("object not found")
	ErrCorrupt  = errors.New("object content does not match its id")
)

// Finder looks up the content of a blob by its id.
type Finder interface {
	Find(ctx context.Context, id plumbing.Hash) ([]byte, error)
}

// FinderFunc adapts a function to the Finder interface.
type FinderFunc func(ctx context.Context, id plumbing.Hash) ([]byte, error)

func (f FinderFunc) Find(ctx context.Context, id plumbing.Hash) ([]byte, error) {
	return f(ctx, id)
}

// Never finds nothing. It suits runs that only ever match by identity.
type Never struct{}

func (Never) Find(_ context.Context, id plumbing.Hash) ([]byte, error) {
	return nil, notFound(id)
}

// BlobID returns the git id of data stored as a blob.
func BlobID(data []byte) plumbing.Hash {
	return plumbing.ComputeHash(plumbing.BlobObject, data)
}

func notFound(id plumbing.Hash) error {
	return &lookupError{id: id, err: ErrNotFound}
}

type lookupError struct {
	id  plumbing.Hash
	err error
}

func (e *lookupError) Error() string {
	return e.err.Error() + ": " + e.id.String()
}

func (e *lookupError) Unwrap() error {
	return e.err
}
