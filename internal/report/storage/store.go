// internal/report/storage/store.go
package storage

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"tigdiff/internal/report"
	"tigdiff/internal/storage"
)

type Store struct {
	store *storage.Collection
}

func NewStore(db *badger.DB) *Store {
	return &Store{
		store: storage.NewCollection(db, "report"),
	}
}

// reportRecord keys a report by its id
type reportRecord struct {
	*report.Report
}

func (r *reportRecord) Key() string {
	return r.ID
}

func validate(r *report.Report) error {
	if r.OldTree == "" || r.NewTree == "" {
		return fmt.Errorf("both trees are required")
	}
	return nil
}

// Create stores r, assigning an id and creation time when missing
func (s *Store) Create(r *report.Report) error {
	if err := validate(r); err != nil {
		return fmt.Errorf("invalid report: %w", err)
	}

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	return s.store.Insert(&reportRecord{Report: r})
}

func (s *Store) Get(id string) (*report.Report, error) {
	rec := reportRecord{Report: &report.Report{}}
	if err := s.store.Load(id, &rec); err != nil {
		return nil, fmt.Errorf("getting report: %w", mapErr(err))
	}
	return rec.Report, nil
}

func (s *Store) Delete(id string) error {
	if err := s.store.Remove(id); err != nil {
		return fmt.Errorf("deleting report: %w", mapErr(err))
	}
	return nil
}

// List returns all reports, newest first
func (s *Store) List() ([]*report.Report, error) {
	var recs []reportRecord
	if err := s.store.All(&recs); err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}

	reports := make([]*report.Report, len(recs))
	for i, rec := range recs {
		reports[i] = rec.Report
	}
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
	return reports, nil
}

func (s *Store) FindByTrees(oldTree, newTree string) ([]*report.Report, error) {
	if oldTree == "" || newTree == "" {
		return nil, fmt.Errorf("both trees are required")
	}

	reports, err := s.List()
	if err != nil {
		return nil, err
	}

	var result []*report.Report
	for _, r := range reports {
		if r.OldTree == oldTree && r.NewTree == newTree {
			result = append(result, r)
		}
	}
	return result, nil
}

func mapErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %v", report.ErrNotFound, err)
	}
	return err
}
