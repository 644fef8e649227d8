// internal/rewrites/config.go
package rewrites

import (
	"errors"
	"fmt"
)

// CopySource decides which changes may serve as the origin of a copy
type CopySource int

const (
	// FromModifiedFiles only considers files modified in the same diff
	FromModifiedFiles CopySource = iota
	// FromModifiedFilesAndAllSources also considers every file of the old
	// tree, supplied lazily by a SourcesFunc
	FromModifiedFilesAndAllSources
)

func (s CopySource) String() string {
	switch s {
	case FromModifiedFiles:
		return "modified-files"
	case FromModifiedFilesAndAllSources:
		return "all-sources"
	default:
		return fmt.Sprintf("CopySource(%d)", int(s))
	}
}

// Copies enables copy detection
type Copies struct {
	Source CopySource `json:"source"`
	// Similarity threshold in (0, 1]. Nil means copies are only found by
	// identical content.
	Percentage *float32 `json:"percentage,omitempty"`
}

// Rewrites configures rename and copy detection
type Rewrites struct {
	// Nil disables copy detection
	Copies *Copies `json:"copies,omitempty"`
	// Rename similarity threshold in (0, 1]. Nil means renames are only found
	// by identical content.
	Percentage *float32 `json:"percentage,omitempty"`
	// Largest number of similarity checks a pass may need before it is
	// skipped entirely. Zero means unlimited.
	Limit int `json:"limit"`
}

// Percent returns a pointer to p, for use in Rewrites and Copies literals
func Percent(p float32) *float32 {
	return &p
}

// DefaultRewrites returns the settings git uses when renames are enabled:
// 50% similarity, a limit of 1000 checks and no copy detection.
func DefaultRewrites() Rewrites {
	return Rewrites{
		Percentage: Percent(0.5),
		Limit:      1000,
	}
}

// ErrInvalidRewrites is returned by Validate
var ErrInvalidRewrites = errors.New("invalid rewrites configuration")

// Validate checks that thresholds are in range
func (r Rewrites) Validate() error {
	if err := validPercentage("percentage", r.Percentage); err != nil {
		return err
	}
	if r.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative, got %d", ErrInvalidRewrites, r.Limit)
	}
	if r.Copies != nil {
		switch r.Copies.Source {
		case FromModifiedFiles, FromModifiedFilesAndAllSources:
		default:
			return fmt.Errorf("%w: unknown copy source %s", ErrInvalidRewrites, r.Copies.Source)
		}
		if err := validPercentage("copies percentage", r.Copies.Percentage); err != nil {
			return err
		}
	}
	return nil
}

func validPercentage(name string, p *float32) error {
	if p == nil {
		return nil
	}
	if *p <= 0 || *p > 1 {
		return fmt.Errorf("%w: %s must be in (0, 1], got %v", ErrInvalidRewrites, name, *p)
	}
	return nil
}

// needsSimilarity reports whether a threshold asks for more than identical
// content.
func needsSimilarity(p *float32) bool {
	return p != nil && *p < 1
}
