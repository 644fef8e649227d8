// internal/report/types.go
package report

import (
	"errors"
	"time"

	"tigdiff/internal/blob"
	"tigdiff/internal/rewrites"
)

var ErrNotFound = errors.New("report not found")

// Status is what happened to a path, in the vocabulary of git diff --name-status
type Status string

const (
	Added    Status = "added"
	Deleted  Status = "deleted"
	Modified Status = "modified"
	Renamed  Status = "renamed"
	Copied   Status = "copied"
)

// Letter returns the single letter git uses for the status
func (s Status) Letter() string {
	switch s {
	case Added:
		return "A"
	case Deleted:
		return "D"
	case Modified:
		return "M"
	case Renamed:
		return "R"
	case Copied:
		return "C"
	default:
		return "?"
	}
}

// Entry is one reported path
type Entry struct {
	Status     Status `json:"status"`
	Path       string `json:"path"`
	SourcePath string `json:"source_path,omitempty"`
	ID         string `json:"id"`
	SourceID   string `json:"source_id,omitempty"`
	Mode       string `json:"mode"`
	// 1 for identical content, 0 when there is no source
	Similarity float32         `json:"similarity"`
	Stats      *blob.LineStats `json:"stats,omitempty"`
}

// Report is the result of one rename and copy detection between two trees
type Report struct {
	ID          string           `json:"id"`
	Repository  string           `json:"repository,omitempty"`
	OldRevision string           `json:"old_revision"`
	NewRevision string           `json:"new_revision"`
	OldTree     string           `json:"old_tree"`
	NewTree     string           `json:"new_tree"`
	Outcome     rewrites.Outcome `json:"outcome"`
	Entries     []Entry          `json:"entries"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Summary counts entries per status
type Summary struct {
	Added    int `json:"added"`
	Deleted  int `json:"deleted"`
	Modified int `json:"modified"`
	Renamed  int `json:"renamed"`
	Copied   int `json:"copied"`
}

func (r *Report) Summary() Summary {
	var s Summary
	for _, e := range r.Entries {
		switch e.Status {
		case Added:
			s.Added++
		case Deleted:
			s.Deleted++
		case Modified:
			s.Modified++
		case Renamed:
			s.Renamed++
		case Copied:
			s.Copied++
		}
	}
	return s
}

// Box stores reports
type Box interface {
	Create(r *Report) error
	Get(id string) (*Report, error)
	Delete(id string) error
	List() ([]*Report, error)

	// Reports computed between the same two trees
	FindByTrees(oldTree, newTree string) ([]*Report, error)
}
