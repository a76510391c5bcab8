package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"vipctl/internal/filter"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSkipLogSectionsInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "import.log")
	log := NewSkipLog(path)

	require.NoError(t, log.Record(filter.SkippedOversize, "/u/big.mp4"))
	require.NoError(t, log.Record(filter.SkippedExtension, "/u/a.exe"))
	require.NoError(t, log.Record(filter.SkippedExtension, "/u/b.exe"))
	require.NoError(t, log.Finalize())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	expected := section("Skipped with unsupported extension:") + "/u/a.exe\n/u/b.exe\n\n\n" +
		section("Skipped intermediate images:") + "None\n\n" +
		section("Skipped invalid filenames:") + "None\n\n" +
		section("Skipped large files:") + "/u/big.mp4\n\n\n"
	assert.Equal(t, expected, string(data))
}

func TestSkipLogOutsideSectionOnlyWhenUsed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "import.log")
	log := NewSkipLog(path)
	require.NoError(t, log.Record(filter.SkippedOutsideUploadsRoot, "/srv/media/a.jpg"))
	require.NoError(t, log.Finalize())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data),
		section("Skipped large files:")+"None\n\n"+
			section("Skipped files outside uploads directory:")+"/srv/media/a.jpg\n\n\n"))
	assert.Equal(t, 4, strings.Count(string(data), "None\n"))
}

func TestSkipLogConcurrentRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "import.log")
	log := NewSkipLog(path)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				assert.NoError(t, log.Record(filter.SkippedIntermediate, fmt.Sprintf("/u/%d-%d-1x1.jpg", w, i)))
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, int64(2000), log.Count(filter.SkippedIntermediate))
	counts := log.Counts()
	assert.Equal(t, int64(0), counts[filter.SkippedExtension])
	assert.Len(t, counts, 5)

	require.NoError(t, log.Finalize())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2000, strings.Count(string(data), "-1x1.jpg\n"))
}

func TestSkipLogClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "import.log")
	log := NewSkipLog(path)
	require.NoError(t, log.Record(filter.SkippedExtension, "/u/a.exe"))
	require.NoError(t, log.Close())

	_, err := os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(path + ".ext")
	assert.ErrorIs(t, err, os.ErrNotExist)

	assert.Error(t, log.Record(filter.SkippedExtension, "/u/b.exe"))
	assert.Error(t, log.Finalize())
}

func TestSkipLogRejectsAllowed(t *testing.T) {
	log := NewSkipLog(filepath.Join(t.TempDir(), "import.log"))
	defer log.Close()
	assert.Error(t, log.Record(filter.Allowed, "/u/a.jpg"))
}
