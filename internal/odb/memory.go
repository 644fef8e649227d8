package odb

import (
	"context"
	"sync"

	"github.com/go-git/go-git/v5/plumbing"
)

// Memory is a map-backed object database.
type Memory struct {
	mu    sync.RWMutex
	blobs map[plumbing.Hash][]byte
}

func NewMemory() *Memory {
	return &Memory{
		blobs: make(map[plumbing.Hash][]byte),
	}
}

// Insert stores data as a blob and returns its id
func (m *Memory) Insert(data []byte) plumbing.Hash {
	if data == nil {
		data = []byte{}
	}

	id := BlobID(data)

	m.mu.Lock()
	m.blobs[id] = data
	m.mu.Unlock()

	return id
}

// InsertString is Insert for string content.
func (m *Memory) InsertString(data string) plumbing.Hash {
	return m.Insert([]byte(data))
}

func (m *Memory) Find(ctx context.Context, id plumbing.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	data, ok := m.blobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, notFound(id)
	}

	return data, nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
