// internal/odb/store.go
package odb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"
)

// BlobMeta stores metadata about a stored blob
type BlobMeta struct {
	ID         string    `json:"id"`
	Size       int64     `json:"size"`
	StoredSize int64     `json:"stored_size"`
	RefCount   uint32    `json:"ref_count"`
	Compressed bool      `json:"compressed"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store is a persistent, deduplicated blob store on top of badger. Blobs are
// keyed by their git id, so anything read from a repository once can be
// served again without touching the repository.
type Store struct {
	db          *badger.DB
	compression *compressionManager
	logger      *zap.Logger
}

// StoreOptions configures Store behavior
type StoreOptions struct {
	Compression CompressionOptions
	Logger      *zap.Logger
}

// NewStore creates a blob store in db.
func NewStore(db *badger.DB, opts StoreOptions) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}

	// Use reasonable defaults
	if opts.Compression == (CompressionOptions{}) {
		opts.Compression = DefaultCompressionOptions()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cm, err := newCompressionManager(opts.Compression)
	if err != nil {
		return nil, fmt.Errorf("initializing compression: %w", err)
	}

	return &Store{
		db:          db,
		compression: cm,
		logger:      opts.Logger,
	}, nil
}

// Put saves data as a blob and returns its id. Storing the same content
// again only bumps its reference count.
func (s *Store) Put(data []byte) (plumbing.Hash, error) {
	if data == nil {
		data = []byte{}
	}
	id := BlobID(data)

	err := s.db.Update(func(txn *badger.Txn) error {
		meta, err := getMeta(txn, id)
		switch {
		case err == nil:
			meta.RefCount++
			return setMeta(txn, meta)
		case !errors.Is(err, ErrNotFound):
			return err
		}

		stored, compressed := s.compression.compress(data)
		meta = BlobMeta{
			ID:         id.String(),
			Size:       int64(len(data)),
			StoredSize: int64(len(stored)),
			RefCount:   1,
			Compressed: compressed,
			CreatedAt:  time.Now(),
		}

		if err := txn.Set(dataKey(id), stored); err != nil {
			return fmt.Errorf("writing blob data: %w", err)
		}
		return setMeta(txn, meta)
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("storing blob %s: %w", id, err)
	}

	return id, nil
}

// Find retrieves a blob and verifies it against its id.
func (s *Store) Find(ctx context.Context, id plumbing.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		meta   BlobMeta
		stored []byte
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		meta, err = getMeta(txn, id)
		if err != nil {
			return err
		}

		item, err := txn.Get(dataKey(id))
		if err == badger.ErrKeyNotFound {
			return notFound(id)
		}
		if err != nil {
			return err
		}
		stored, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("reading blob %s: %w", id, err)
	}

	content := stored
	if meta.Compressed {
		content, err = s.compression.decompress(stored)
		if err != nil {
			return nil, fmt.Errorf("decompressing blob %s: %w", id, err)
		}
	}

	// Verify hash
	if BlobID(content) != id {
		return nil, &lookupError{id: id, err: ErrCorrupt}
	}

	return content, nil
}

// Has reports whether the blob is stored.
func (s *Store) Has(id plumbing.Hash) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := getMeta(txn, id)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Meta returns the stored metadata of a blob.
func (s *Store) Meta(id plumbing.Hash) (BlobMeta, error) {
	var meta BlobMeta
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		meta, err = getMeta(txn, id)
		return err
	})
	return meta, err
}

// Delete decrements the reference count of a blob and removes it once
// nothing refers to it anymore.
func (s *Store) Delete(id plumbing.Hash) error {
	return s.db.Update(func(txn *badger.Txn) error {
		meta, err := getMeta(txn, id)
		if err != nil {
			return err
		}

		meta.RefCount--
		if meta.RefCount > 0 {
			return setMeta(txn, meta)
		}

		if err := txn.Delete(dataKey(id)); err != nil {
			return fmt.Errorf("removing blob data: %w", err)
		}
		return txn.Delete(metaKey(id))
	})
}

// Through returns a Finder serving from the store and falling back to next.
// Blobs found in next are persisted for later runs.
func (s *Store) Through(next Finder) Finder {
	return FinderFunc(func(ctx context.Context, id plumbing.Hash) ([]byte, error) {
		data, err := s.Find(ctx, id)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		data, err = next.Find(ctx, id)
		if err != nil {
			return nil, err
		}

		if _, err := s.Put(data); err != nil {
			s.logger.Warn("persisting blob", zap.Stringer("id", id), zap.Error(err))
		}
		return data, nil
	})
}

// Close releases the compression resources. The database stays open.
func (s *Store) Close() {
	s.compression.close()
}

func metaKey(id plumbing.Hash) []byte {
	return []byte(fmt.Sprintf("blob:meta:%s", id))
}

func dataKey(id plumbing.Hash) []byte {
	return []byte(fmt.Sprintf("blob:data:%s", id))
}

func getMeta(txn *badger.Txn, id plumbing.Hash) (BlobMeta, error) {
	var meta BlobMeta

	item, err := txn.Get(metaKey(id))
	if err == badger.ErrKeyNotFound {
		return meta, notFound(id)
	}
	if err != nil {
		return meta, err
	}

	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &meta)
	})
	return meta, err
}

func setMeta(txn *badger.Txn, meta BlobMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling blob metadata: %w", err)
	}

	id := plumbing.NewHash(meta.ID)
	return txn.Set(metaKey(id), data)
}
