package rewrites

// Outcome holds the statistics of one Emit
type Outcome struct {
	// Configuration the tracker ran with
	Options Rewrites `json:"options"`
	// Comparisons that produced line statistics. Pairs the differ declined,
	// binary or oversized blobs, are not counted.
	SimilarityChecks int `json:"similarity_checks"`
	// Checks avoided because a rename pass would have exceeded the limit
	RenameChecksSkipped int `json:"rename_checks_skipped"`
	// Checks avoided because a copy pass would have exceeded the limit
	CopyChecksSkipped int `json:"copy_checks_skipped"`
}

// LimitReached reports whether any pass was skipped because of the limit
func (o Outcome) LimitReached() bool {
	return o.RenameChecksSkipped > 0 || o.CopyChecksSkipped > 0
}
