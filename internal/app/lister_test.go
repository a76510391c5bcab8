package app

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeEntries(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("f%05d.jpg", i)))
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	return dir
}

// expandAll follows continuations the way the queue handler does
func expandAll(t *testing.T, l Lister, dir string) (entries []string, pages int) {
	t.Helper()
	offset := 0
	for {
		batch, next, err := l.Expand(dir, offset)
		require.NoError(t, err)
		pages++
		entries = append(entries, batch...)
		if next == nil {
			return entries, pages
		}
		assert.Equal(t, dir, next.Path)
		assert.Len(t, batch, l.batchSize())
		offset = next.Offset
	}
}

func TestListerExpand(t *testing.T) {
	tests := []struct {
		entries int
		pages   int
	}{
		{entries: 0, pages: 1},
		{entries: 4999, pages: 1},
		{entries: 5000, pages: 1},
		{entries: 5001, pages: 2},
		{entries: 20000, pages: 4},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d entries", tt.entries), func(t *testing.T) {
			if tt.entries > 5001 && testing.Short() {
				t.Skip("large directory")
			}
			dir := makeEntries(t, tt.entries)

			entries, pages := expandAll(t, Lister{}, dir)
			assert.Equal(t, tt.pages, pages)
			require.Len(t, entries, tt.entries)

			seen := make(map[string]bool, len(entries))
			for _, e := range entries {
				assert.False(t, seen[e], "duplicate entry %s", e)
				seen[e] = true
				assert.Equal(t, dir, filepath.Dir(e))
			}
		})
	}
}

func TestListerSmallBatches(t *testing.T) {
	dir := makeEntries(t, 23)

	entries, pages := expandAll(t, Lister{BatchSize: 5}, dir)
	assert.Len(t, entries, 23)
	// 5+5+5+5 then a final page of 3
	assert.Equal(t, 5, pages)
}

func TestListerOffsetPastEnd(t *testing.T) {
	dir := makeEntries(t, 3)

	batch, next, err := Lister{}.Expand(dir, 10)
	require.NoError(t, err)
	assert.Empty(t, batch)
	assert.Nil(t, next)
}

func TestListerMissingDirectory(t *testing.T) {
	_, _, err := Lister{}.Expand(filepath.Join(t.TempDir(), "missing"), 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
