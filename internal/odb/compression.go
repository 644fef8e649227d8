// internal/odb/compression.go
package odb

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// CompressionOptions configures how blobs are compressed at rest
type CompressionOptions struct {
	// Minimum size in bytes before compressing
	MinSize int
	// Compression level (1=fastest, 4=best)
	Level int
}

// DefaultCompressionOptions provides sensible defaults
func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{
		MinSize: 1024,
		Level:   2,
	}
}

// compressionManager handles compression operations. EncodeAll and DecodeAll
// are safe for concurrent use, so one encoder and one decoder are shared.
type compressionManager struct {
	opts CompressionOptions
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

func newCompressionManager(opts CompressionOptions) (*compressionManager, error) {
	if opts.Level == 0 {
		opts.Level = DefaultCompressionOptions().Level
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.Level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
	)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	return &compressionManager{opts: opts, enc: enc, dec: dec}, nil
}

// shouldCompress determines if content should be compressed
func (cm *compressionManager) shouldCompress(size int) bool {
	return size >= cm.opts.MinSize
}

// compress returns the stored form of content and whether it was compressed.
// Content that does not shrink is kept as is.
func (cm *compressionManager) compress(content []byte) ([]byte, bool) {
	if !cm.shouldCompress(len(content)) {
		return content, false
	}

	out := cm.enc.EncodeAll(content, make([]byte, 0, len(content)/2))
	if len(out) >= len(content) {
		return content, false
	}
	return out, true
}

// decompress decompresses content
func (cm *compressionManager) decompress(content []byte) ([]byte, error) {
	if len(content) < len(zstdMagic) || !bytes.Equal(content[:len(zstdMagic)], zstdMagic) {
		return nil, fmt.Errorf("missing zstd frame header")
	}

	out, err := cm.dec.DecodeAll(content, nil)
	if err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}
	return out, nil
}

// close cleans up resources
func (cm *compressionManager) close() {
	cm.enc.Close()
	cm.dec.Close()
}
