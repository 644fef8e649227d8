// internal/blob/platform.go
package blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-enry/go-enry/v2"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"go.uber.org/zap"

	"tigdiff/internal/odb"
)

// DefaultMaxBlobSize is the largest blob compared by content, matching the
// size above which git stops looking for inexact renames.
const DefaultMaxBlobSize = 512 << 20

// Resource identifies one side of a comparison
type Resource struct {
	ID       plumbing.Hash
	Mode     filemode.FileMode
	Location string
}

// Transform converts blob data before it is diffed. It must not modify its
// input in place.
type Transform func(location string, data []byte) []byte

// NormalizeLineEndings converts CRLF line endings to LF
func NormalizeLineEndings(_ string, data []byte) []byte {
	if !bytes.Contains(data, []byte("\r\n")) {
		return data
	}
	return bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
}

// Options configures a Platform
type Options struct {
	// Blobs larger than this are never compared. Zero means DefaultMaxBlobSize.
	MaxBlobSize int64
	// Applied in order to both sides before diffing
	Transforms []Transform
	Logger     *zap.Logger
}

// Platform loads blobs and scores their similarity
type Platform struct {
	maxBlobSize int64
	transforms  []Transform
	logger      *zap.Logger
}

// NewPlatform creates a platform. With no transforms configured, line endings
// are normalized.
func NewPlatform(opts Options) *Platform {
	if opts.MaxBlobSize <= 0 {
		opts.MaxBlobSize = DefaultMaxBlobSize
	}
	if opts.Transforms == nil {
		opts.Transforms = []Transform{NormalizeLineEndings}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Platform{
		maxBlobSize: opts.MaxBlobSize,
		transforms:  opts.Transforms,
		logger:      opts.Logger,
	}
}

// Similarity diffs the content of old and new. It returns nil without an
// error when the two cannot be compared, for binary or oversized content.
func (p *Platform) Similarity(ctx context.Context, objects odb.Finder, old, new Resource) (*LineStats, error) {
	oldData, ok, err := p.load(ctx, objects, old)
	if err != nil || !ok {
		return nil, err
	}
	newData, ok, err := p.load(ctx, objects, new)
	if err != nil || !ok {
		return nil, err
	}

	stats, ok := Diff(oldData, newData)
	if !ok {
		p.logger.Debug("too many lines to compare",
			zap.String("old", old.Location),
			zap.String("new", new.Location))
		return nil, nil
	}
	return &stats, nil
}

func (p *Platform) load(ctx context.Context, objects odb.Finder, r Resource) ([]byte, bool, error) {
	data, err := objects.Find(ctx, r.ID)
	if err != nil {
		return nil, false, fmt.Errorf("loading %s: %w", r.Location, err)
	}

	if int64(len(data)) > p.maxBlobSize {
		p.logger.Debug("blob too large to compare",
			zap.String("location", r.Location),
			zap.Int("size", len(data)))
		return nil, false, nil
	}
	if enry.IsBinary(data) {
		return nil, false, nil
	}

	for _, t := range p.transforms {
		data = t(r.Location, data)
	}
	return data, true, nil
}
