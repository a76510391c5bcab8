package filter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAllowedType(t *testing.T) {
	allowed := []string{"jpg", "png", "pdf"}
	extra := []string{"csv"}

	tests := []struct {
		name     string
		file     string
		extra    []string
		expected bool
	}{
		{name: "plain jpg", file: "photo.jpg", expected: true},
		{name: "uppercase extension", file: "photo.JPG", expected: true},
		{name: "extra type", file: "data.csv", extra: extra, expected: true},
		{name: "extra type not configured", file: "data.csv", expected: false},
		{name: "blocked exe", file: "doc.exe", extra: extra, expected: false},
		{name: "blocked flv", file: "clip.flv", extra: extra, expected: false},
		{name: "no extension", file: "README", expected: false},
		{name: "trailing dot", file: "photo.", expected: false},
		{name: "dot in directory only", file: "/a.jpg/README", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsAllowedType(tt.file, allowed, tt.extra))
		})
	}
}

func TestClassify(t *testing.T) {
	present := map[string]bool{
		"/site/wp-content/uploads/2020/01/photo.jpg": true,
	}
	rules := Rules{
		Types:  []string{"jpg", "png"},
		Exists: func(p string) bool { return present[p] },
	}

	tests := []struct {
		name     string
		rules    Rules
		file     string
		size     int64
		expected Decision
	}{
		{
			name:     "allowed",
			file:     "/site/wp-content/uploads/2020/01/photo.jpg",
			expected: Allowed,
		},
		{
			name:     "case insensitive extension",
			file:     "/site/wp-content/uploads/2020/01/photo.JPG",
			expected: Allowed,
		},
		{
			name:     "bad extension",
			file:     "/site/wp-content/uploads/2020/01/doc.exe",
			expected: SkippedExtension,
		},
		{
			name:     "invalid characters",
			file:     "/site/wp-content/uploads/2020/01/my photo.jpg",
			expected: SkippedInvalidName,
		},
		{
			name:     "invalid characters beat bad extension",
			file:     "/site/wp-content/uploads/2020/01/setup (1).exe",
			expected: SkippedInvalidName,
		},
		{
			name:     "intermediate with original",
			file:     "/site/wp-content/uploads/2020/01/photo-150x150.jpg",
			expected: SkippedIntermediate,
		},
		{
			name:     "intermediate without original is independent",
			file:     "/site/wp-content/uploads/2020/01/banner-1200x300.jpg",
			expected: Allowed,
		},
		{
			name: "intermediate allowed",
			rules: Rules{
				Types:             []string{"jpg"},
				AllowIntermediate: true,
				Exists:            func(string) bool { return true },
			},
			file:     "/site/wp-content/uploads/2020/01/photo-150x150.jpg",
			expected: Allowed,
		},
		{
			name:     "oversize beats everything",
			file:     "/elsewhere/doc.exe",
			size:     MaxFileSize + 1,
			expected: SkippedOversize,
		},
		{
			name:     "exactly max size is fine",
			file:     "/site/wp-content/uploads/big.jpg",
			size:     MaxFileSize,
			expected: Allowed,
		},
		{
			name:     "outside uploads root",
			file:     "/site/wp-content/themes/logo.png",
			expected: SkippedOutsideUploadsRoot,
		},
		{
			name: "custom uploads root",
			rules: Rules{
				Types:       []string{"png"},
				UploadsRoot: "media",
			},
			file:     "/srv/media/logo.png",
			expected: Allowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rules
			if tt.rules.Types != nil {
				r = tt.rules
			}
			assert.Equal(t, tt.expected, r.Classify(tt.file, tt.size))
		})
	}
}

func TestClassifyInvalidNameRegardlessOfExtension(t *testing.T) {
	rules := Rules{Types: DefaultTypes}
	for _, name := range []string{"a b.jpg", "ü.png", "x$y.pdf", "quote'.gif", "semi;colon.mp4", "x y.exe"} {
		file := "/wp-content/uploads/" + name
		assert.Equal(t, SkippedInvalidName, rules.Classify(file, 10), name)
	}
}

func TestClassifyIntermediateOnDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads", "2021")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	orig := filepath.Join(dir, "cat.png")
	sized := filepath.Join(dir, "cat-300x200.png")
	require.NoError(t, os.WriteFile(orig, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(sized, []byte("x"), 0o644))

	rules := Rules{Types: []string{"png"}}
	assert.Equal(t, SkippedIntermediate, rules.Classify(sized, 1))
	assert.Equal(t, Allowed, rules.Classify(orig, 1))

	require.NoError(t, os.Remove(orig))
	assert.Equal(t, Allowed, rules.Classify(sized, 1))
}

func TestOriginalPath(t *testing.T) {
	assert.Equal(t, "/u/photo.jpeg", OriginalPath("/u/photo-1024x768.jpeg"))
	assert.Equal(t, "/u/photo.jpg", OriginalPath("/u/photo.jpg"))
	assert.True(t, IsIntermediate("/u/a-1x1.webp"))
	assert.False(t, IsIntermediate("/u/a-1x1.j"))
	assert.False(t, IsIntermediate("/u/a-wx1.jpg"))
}

func TestRemotePath(t *testing.T) {
	remote, ok := RemotePath("/var/www/wp-content/uploads/2020/01/img.jpg", "")
	require.True(t, ok)
	assert.Equal(t, "/wp-content/uploads/2020/01/img.jpg", remote)

	_, ok = RemotePath("/var/www/wp-content/uploads/", "")
	assert.False(t, ok)

	_, ok = RemotePath("/var/www/myuploads/img.jpg", "")
	assert.False(t, ok)
}

func TestHasUploadsRoot(t *testing.T) {
	assert.True(t, HasUploadsRoot("/var/www/wp-content/uploads", ""))
	assert.True(t, HasUploadsRoot("/var/www/wp-content/uploads/2020/", ""))
	assert.False(t, HasUploadsRoot("/var/www/wp-content/myuploads", ""))
	assert.True(t, HasUploadsRoot("/srv/media", "media"))
}

func TestIsImportableMediaURL(t *testing.T) {
	assert.True(t, IsImportableMediaURL("/wp-content/uploads/2020/01/img.jpg"))
	assert.True(t, IsImportableMediaURL("https://example.com/wp-content/uploads/img.jpg?ver=2"))
	assert.False(t, IsImportableMediaURL("/other/img.jpg"))
	assert.False(t, IsImportableMediaURL("https://example.com/blog/wp-content/uploads/img.jpg"))
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "allowed", Allowed.String())
	assert.Equal(t, "intermediate_image", SkippedIntermediate.String())
	assert.Equal(t, "unknown", Decision(42).String())
}
