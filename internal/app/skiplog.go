package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"vipctl/internal/filter"
)

type skipSection struct {
	decision filter.Decision
	header   string
	suffix   string
	optional bool // left out of the log when empty
}

// skipSections lists the log file sections in output order
var skipSections = []skipSection{
	{filter.SkippedExtension, "Skipped with unsupported extension:", ".ext", false},
	{filter.SkippedIntermediate, "Skipped intermediate images:", ".int", false},
	{filter.SkippedInvalidName, "Skipped invalid filenames:", ".filenames", false},
	{filter.SkippedOversize, "Skipped large files:", ".filesize", false},
	{filter.SkippedOutsideUploadsRoot, "Skipped files outside uploads directory:", ".outside", true},
}

type skipPart struct {
	file  *os.File
	buf   *bufio.Writer
	count int64
}

// SkipLog collects skipped paths per reason. Paths are spooled to one side
// file per section so memory stays flat however many files are skipped;
// Finalize stitches them into the run's log file.
type SkipLog struct {
	path string

	mu     sync.Mutex
	parts  map[filter.Decision]*skipPart
	closed bool
}

// NewSkipLog creates a skip log that will be written to path
func NewSkipLog(path string) *SkipLog {
	return &SkipLog{
		path:  path,
		parts: make(map[filter.Decision]*skipPart),
	}
}

// Path returns the final log file location
func (l *SkipLog) Path() string {
	return l.path
}

// Record appends file to the section for decision
func (l *SkipLog) Record(decision filter.Decision, file string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errors.New("skip log is closed")
	}

	part, ok := l.parts[decision]
	if !ok {
		section, found := sectionFor(decision)
		if !found {
			return fmt.Errorf("no skip log section for %s", decision)
		}
		f, err := os.Create(l.path + section.suffix)
		if err != nil {
			return fmt.Errorf("failed to create skip log part: %w", err)
		}
		part = &skipPart{file: f, buf: bufio.NewWriter(f)}
		l.parts[decision] = part
	}

	if _, err := part.buf.WriteString(file + "\n"); err != nil {
		return err
	}
	part.count++
	return nil
}

// Count returns how many files were recorded for decision
func (l *SkipLog) Count(decision filter.Decision) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	if part, ok := l.parts[decision]; ok {
		return part.count
	}
	return 0
}

// Counts returns the per-reason totals, including zero entries
func (l *SkipLog) Counts() map[filter.Decision]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := make(map[filter.Decision]int64, len(skipSections))
	for _, s := range skipSections {
		counts[s.decision] = 0
		if part, ok := l.parts[s.decision]; ok {
			counts[s.decision] = part.count
		}
	}
	return counts
}

// Finalize writes the log file with every section in order, listing its
// paths or "None", and removes the side files.
func (l *SkipLog) Finalize() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return errors.New("skip log is closed")
	}
	l.closed = true

	out, err := os.Create(l.path)
	if err != nil {
		l.removeParts()
		return fmt.Errorf("failed to create import log: %w", err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	for _, s := range skipSections {
		part, ok := l.parts[s.decision]
		if !ok && s.optional {
			continue
		}
		fmt.Fprintf(w, "%s\n%s\n\n", s.header, strings.Repeat("=", len(s.header)))

		if !ok {
			w.WriteString("None\n\n")
			continue
		}
		if err := copyPart(w, part); err != nil {
			l.removeParts()
			return fmt.Errorf("failed to write import log: %w", err)
		}
		w.WriteString("\n\n")
	}

	l.removeParts()
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write import log: %w", err)
	}
	return out.Close()
}

// Close discards the side files without writing the log
func (l *SkipLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	l.removeParts()
	return nil
}

func copyPart(w io.Writer, part *skipPart) error {
	if err := part.buf.Flush(); err != nil {
		return err
	}
	if _, err := part.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err := io.Copy(w, part.file)
	return err
}

// removeParts must be called with the lock held
func (l *SkipLog) removeParts() {
	for _, part := range l.parts {
		part.file.Close()
		os.Remove(part.file.Name())
	}
}

func sectionFor(decision filter.Decision) (skipSection, bool) {
	for _, s := range skipSections {
		if s.decision == decision {
			return s, true
		}
	}
	return skipSection{}, false
}
