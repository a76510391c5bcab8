package worker

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrSymlink is returned for links that point at directories or cannot be resolved
var ErrSymlink = errors.New("invalid file: symlink")

// Item is a unit of queue work. The concrete types below are the only
// implementations and are told apart with a type switch.
type Item interface {
	isItem()
}

// Directory asks for the first batch of a directory listing
type Directory struct {
	Path string
}

// FileBatch is one page of directory entries, as absolute paths
type FileBatch struct {
	Paths []string
}

// Continuation points at the next unread page of a large directory
type Continuation struct {
	Path   string
	Offset int
}

// File is a single directory entry awaiting stat and classification
type File struct {
	Path string
}

func (Directory) isItem()    {}
func (FileBatch) isItem()    {}
func (Continuation) isItem() {}
func (File) isItem()         {}

// RootPriority is the priority the run's root directory is seeded with
const RootPriority = 1

// DirPriority derives an item priority from the depth of dir.
// Deeper directories get smaller values and are drained first.
func DirPriority(dir string) int {
	clean := filepath.ToSlash(filepath.Clean(dir))
	return -len(strings.Split(clean, "/"))
}

// FileTask is an eligible file handed to the processor
type FileTask struct {
	Path       string // local path
	RemotePath string // /wp-content/uploads/...
	Size       int64
}

// Mode selects what the processor does with an eligible file
type Mode int

const (
	ModeCounting Mode = iota
	ModeImporting
)

func (m Mode) String() string {
	if m == ModeImporting {
		return "importing"
	}
	return "counting"
}

// Config contains processor configuration
type Config struct {
	SiteID         int
	Fast           bool
	Retries        int
	RetryBackoffMs int
	Resume         bool
}
