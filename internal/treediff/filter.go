package treediff

import (
	"strings"

	"github.com/go-enry/go-enry/v2"
)

// Filter drops paths from a diff before rename detection sees them
type Filter struct {
	// Paths starting with any of these are skipped
	SkipPrefixes []string
	// Skip vendored and generated dependency paths, as linguist classifies them
	SkipVendored bool
}

func (f Filter) Skip(path string) bool {
	for _, prefix := range f.SkipPrefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return f.SkipVendored && enry.IsVendor(path)
}
