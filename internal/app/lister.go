package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"vipctl/internal/worker"
)

// DefaultBatchSize is the number of directory entries queued per page
const DefaultBatchSize = 5000

// readChunk bounds each Readdirnames call while skipping to an offset
const readChunk = 1024

// Lister pages through directory listings without holding a whole directory in memory
type Lister struct {
	BatchSize int
}

func (l Lister) batchSize() int {
	if l.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return l.BatchSize
}

// Expand returns the entries of dir starting at offset, as absolute paths.
// When more than one page remains, next points at the following page;
// otherwise the whole remainder is returned and next is nil.
func (l Lister) Expand(dir string, offset int) (batch []string, next *worker.Continuation, err error) {
	size := l.batchSize()

	f, err := os.Open(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open directory %s: %w", dir, err)
	}
	defer f.Close()

	for skipped := 0; skipped < offset; {
		n := min(offset-skipped, readChunk)
		names, err := f.Readdirnames(n)
		skipped += len(names)
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
		}
	}

	// One extra entry tells a full final page apart from a page with more behind it.
	names := make([]string, 0, size+1)
	for len(names) <= size {
		chunk, err := f.Readdirnames(size + 1 - len(names))
		names = append(names, chunk...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
		}
	}

	if len(names) > size {
		names = names[:size]
		next = &worker.Continuation{Path: dir, Offset: offset + size}
	}

	batch = make([]string, len(names))
	for i, name := range names {
		batch[i] = filepath.Join(dir, name)
	}
	return batch, next, nil
}
