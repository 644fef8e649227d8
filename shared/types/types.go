// Request and response bodies shared by the server and its client
package shared

import (
	"tigdiff/internal/odb"
	"tigdiff/internal/report"
	"tigdiff/internal/rewrites"
)

// DetectRequest asks the server to find renames and copies between two
// revisions of its repository
type DetectRequest struct {
	Old string `json:"old"`
	New string `json:"new"`
	// Nil uses the server's configured options
	Rewrites *rewrites.Rewrites `json:"rewrites,omitempty"`
	// Store the resulting report
	Save bool `json:"save"`
}

// DetectResponse is a report together with its per-status counts
type DetectResponse struct {
	Report  *report.Report `json:"report"`
	Summary report.Summary `json:"summary"`
	Saved   bool           `json:"saved"`
}

// Health is returned by the health endpoint
type Health struct {
	Status     string          `json:"status"`
	Repository string          `json:"repository"`
	Cache      *odb.CacheStats `json:"cache,omitempty"`
}
