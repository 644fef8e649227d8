package rewrites

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
)

// ChangeKind is the kind of change at one path
type ChangeKind int

const (
	Addition ChangeKind = iota
	Deletion
	Modification
)

func (k ChangeKind) String() string {
	switch k {
	case Addition:
		return "addition"
	case Deletion:
		return "deletion"
	case Modification:
		return "modification"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// Change describes what happened to one path between two trees. Matching
// only ever looks at ID and Mode.
type Change struct {
	Kind ChangeKind
	// Blob after the change, or before it for deletions
	ID   plumbing.Hash
	Mode filemode.FileMode

	// Blob before a modification. Informational only.
	PreviousID   plumbing.Hash
	PreviousMode filemode.FileMode
}

// isBlob reports whether mode describes an entry whose content can be
// tracked: files, executables and symlinks, but not trees or submodules.
func isBlob(mode filemode.FileMode) bool {
	switch mode {
	case filemode.Regular, filemode.Deprecated, filemode.Executable, filemode.Symlink:
		return true
	default:
		return false
	}
}

// compatible reports whether content may move between the two modes. A
// symlink only pairs with another symlink.
func compatible(a, b filemode.FileMode) bool {
	return (a == filemode.Symlink) == (b == filemode.Symlink)
}
