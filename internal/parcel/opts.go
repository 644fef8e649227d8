package parcel

import (
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// memoryDBOptions returns BadgerDB options for a throwaway in-memory
// database, used when nothing needs to outlive the process.
func memoryDBOptions() badger.Options {
	return badger.DefaultOptions("").
		WithInMemory(true).
		WithNumVersionsToKeep(1).
		WithLogger(nil)
}

// InitDB initializes and returns a BadgerDB instance
func InitDB(path string) (*badger.DB, error) {
	if path == "" {
		db, err := badger.Open(memoryDBOptions())
		if err != nil {
			return nil, fmt.Errorf("opening in-memory database: %w", err)
		}
		return db, nil
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	opts := badger.DefaultOptions(path).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return db, nil
}
