// internal/blob/stats.go
package blob

import (
	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineStats summarizes a line diff between two versions of a blob
type LineStats struct {
	// Lines present in the old version only
	Removals uint32 `json:"removals"`
	// Lines present in the new version only
	Insertions uint32 `json:"insertions"`
	// Line count of the old version
	Before uint32 `json:"before"`
	// Line count of the new version
	After uint32 `json:"after"`
	// Fraction of the larger version that survived unchanged, in [0, 1]
	Similarity float32 `json:"similarity"`
}

// Lines are interned into runes so diffmatchpatch can diff them as text.
// The surrogate block cannot round-trip through a Go string and is skipped.
const (
	surrogateStart = 0xD800
	surrogateSize  = 0x800
	maxLines       = 0x10FFFF + 1 - surrogateSize
)

// Diff computes line statistics between old and new. Lines keep their
// terminators, so "a" and "a\n" are different lines. The second return value
// is false when the inputs hold more distinct lines than can be interned.
func Diff(old, new []byte) (LineStats, bool) {
	in := newInterner()
	oldRunes, ok := in.tokens(old)
	if !ok {
		return LineStats{}, false
	}
	newRunes, ok := in.tokens(new)
	if !ok {
		return LineStats{}, false
	}

	stats := LineStats{
		Before: uint32(len(oldRunes)),
		After:  uint32(len(newRunes)),
	}

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0

	var removedBytes int
	for _, d := range dmp.DiffMainRunes(oldRunes, newRunes, false) {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			for _, r := range d.Text {
				stats.Removals++
				removedBytes += len(in.line(r))
			}
		case diffmatchpatch.DiffInsert:
			for range d.Text {
				stats.Insertions++
			}
		}
	}

	stats.Similarity = similarity(len(old), len(new), removedBytes)
	return stats, true
}

func similarity(oldLen, newLen, removedBytes int) float32 {
	longest := oldLen
	if newLen > longest {
		longest = newLen
	}
	if longest == 0 {
		return 1
	}
	return float32(oldLen-removedBytes) / float32(longest)
}

type interner struct {
	index map[string]rune
	lines []string
}

func newInterner() *interner {
	return &interner{index: make(map[string]rune)}
}

func (in *interner) tokens(data []byte) ([]rune, bool) {
	var out []rune
	for len(data) > 0 {
		end := len(data)
		for i, c := range data {
			if c == '\n' {
				end = i + 1
				break
			}
		}

		r, ok := in.intern(string(data[:end]))
		if !ok {
			return nil, false
		}
		out = append(out, r)
		data = data[end:]
	}
	return out, true
}

func (in *interner) intern(line string) (rune, bool) {
	if r, ok := in.index[line]; ok {
		return r, true
	}
	n := len(in.lines)
	if n >= maxLines {
		return 0, false
	}

	r := rune(n)
	if n >= surrogateStart {
		r += surrogateSize
	}
	in.index[line] = r
	in.lines = append(in.lines, line)
	return r, true
}

func (in *interner) line(r rune) string {
	n := int(r)
	if n >= surrogateStart+surrogateSize {
		n -= surrogateSize
	}
	return in.lines[n]
}
