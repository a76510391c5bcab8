// Package filter decides which files of a WordPress uploads tree are eligible
// for import. All checks are pure string tests except the intermediate-image
// rule, which has to look for the original file on disk.
package filter

import (
	"net/url"
	"os"
	"path"
	"regexp"
	"strings"
)

// MaxFileSize is the largest file the files service accepts (1 GiB)
const MaxFileSize int64 = 1024 * 1024 * 1024

// DefaultUploadsRoot is the path segment every importable file must live under
const DefaultUploadsRoot = "uploads"

// MediaURLPrefix is the URL path prefix served by the files service
const MediaURLPrefix = "/wp-content/uploads"

// Decision is the outcome of classifying one candidate file
type Decision int

const (
	Allowed Decision = iota
	SkippedExtension
	SkippedIntermediate
	SkippedInvalidName
	SkippedOversize
	SkippedOutsideUploadsRoot
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case SkippedExtension:
		return "unsupported_extension"
	case SkippedIntermediate:
		return "intermediate_image"
	case SkippedInvalidName:
		return "invalid_filename"
	case SkippedOversize:
		return "oversized"
	case SkippedOutsideUploadsRoot:
		return "outside_uploads_root"
	default:
		return "unknown"
	}
}

// DefaultTypes are the extensions WordPress allows in its media library
var DefaultTypes = []string{
	"jpg", "jpeg", "jpe",
	"gif",
	"png",
	"bmp",
	"tiff", "tif",
	"ico",
	"asf",
	"asx",
	"wmv", "wmx", "wm",
	"avi",
	"divx",
	"mov",
	"qt",
	"mpeg", "mpg", "mpe", "mp4", "m4v",
	"ogv",
	"webm",
	"mkv",
	"3gp", "3gpp", "3g2", "3gp2",
	"txt",
	"asc",
	"c", "cc", "h",
	"srt",
	"csv", "tsv",
	"ics",
	"rtx",
	"css",
	"vtt",
	"dfxp",
	"mp3",
	"m4a", "m4b",
	"ra",
	"ram",
	"wav",
	"ogg",
	"oga",
	"mid", "midi",
	"wma",
	"wax",
	"mka",
	"rtf",
	"js",
	"pdf",
	"class",
	"psd",
	"xcf",
	"doc",
	"pot",
	"pps",
	"ppt",
	"wri",
	"xla", "xls", "xlt", "xlw",
	"mdb", "mpp",
	"docx", "docm", "dotx", "dotm",
	"xlsx", "xlsm", "xlsb", "xltx", "xltm", "xlam",
	"pptx", "pptm", "ppsx", "ppsm", "potx", "potm", "ppam",
	"sldx", "sldm",
	"onetoc", "onetoc2", "onetmp", "onepkg", "oxps",
	"xps",
	"odt", "odp", "ods", "odg", "odc", "odb", "odf",
	"wp", "wpd",
	"key", "numbers", "pages",
}

var (
	validName    = regexp.MustCompile(`^[a-zA-Z0-9/._-]+$`)
	intermediate = regexp.MustCompile(`-\d+x\d+(\.\w{3,4})$`)
)

// Rules holds the import filter configuration
type Rules struct {
	Types             []string
	ExtraTypes        []string
	AllowIntermediate bool
	UploadsRoot       string
	MaxSize           int64

	// Exists reports whether a file is present on disk. Defaults to os.Stat.
	Exists func(path string) bool
}

// Classify returns the single decision for a file of the given size
func (r Rules) Classify(file string, size int64) Decision {
	maxSize := r.MaxSize
	if maxSize <= 0 {
		maxSize = MaxFileSize
	}
	if size > maxSize {
		return SkippedOversize
	}

	rel, inRoot := RelativeUploadPath(file, r.uploadsRoot())
	name := file
	if inRoot {
		name = rel
	}
	if !validName.MatchString(name) {
		return SkippedInvalidName
	}

	if !IsAllowedType(file, r.Types, r.ExtraTypes) {
		return SkippedExtension
	}

	if !r.AllowIntermediate && IsIntermediate(file) {
		if r.exists(OriginalPath(file)) {
			return SkippedIntermediate
		}
	}

	if !inRoot {
		return SkippedOutsideUploadsRoot
	}

	return Allowed
}

func (r Rules) uploadsRoot() string {
	if r.UploadsRoot == "" {
		return DefaultUploadsRoot
	}
	return r.UploadsRoot
}

func (r Rules) exists(file string) bool {
	if r.Exists != nil {
		return r.Exists(file)
	}
	_, err := os.Stat(file)
	return err == nil
}

// Extension returns the text after the final dot of the base name, or "" if none
func Extension(file string) string {
	base := path.Base(file)
	i := strings.LastIndex(base, ".")
	if i < 0 {
		return ""
	}
	return base[i+1:]
}

// IsAllowedType reports whether the file extension is in types or extraTypes, ignoring case
func IsAllowedType(file string, types, extraTypes []string) bool {
	ext := strings.ToLower(Extension(file))
	if ext == "" {
		return false
	}
	for _, t := range types {
		if strings.ToLower(t) == ext {
			return true
		}
	}
	for _, t := range extraTypes {
		if strings.ToLower(t) == ext {
			return true
		}
	}
	return false
}

// IsIntermediate reports whether the name carries a -WIDTHxHEIGHT size suffix
func IsIntermediate(file string) bool {
	return intermediate.MatchString(file)
}

// OriginalPath strips the size suffix from an intermediate image name
func OriginalPath(file string) string {
	return intermediate.ReplaceAllString(file, "$1")
}

// RelativeUploadPath returns the part of file below the first /<root>/ segment.
// ok is false when the segment is missing or nothing follows it.
func RelativeUploadPath(file, root string) (rel string, ok bool) {
	if root == "" {
		root = DefaultUploadsRoot
	}
	sep := "/" + strings.Trim(root, "/") + "/"
	i := strings.Index(file, sep)
	if i < 0 {
		return "", false
	}
	rel = file[i+len(sep):]
	return rel, rel != ""
}

// HasUploadsRoot reports whether dir is, or is inside, an uploads root directory
func HasUploadsRoot(dir, root string) bool {
	if root == "" {
		root = DefaultUploadsRoot
	}
	root = strings.Trim(root, "/")
	for _, seg := range strings.Split(path.Clean(dir), "/") {
		if seg == root {
			return true
		}
	}
	return false
}

// RemotePath maps a local file to its path on the files service
func RemotePath(file, root string) (string, bool) {
	rel, ok := RelativeUploadPath(file, root)
	if !ok {
		return "", false
	}
	return MediaURLPrefix + "/" + rel, true
}

// IsImportableMediaURL reports whether a URL points into the WordPress uploads directory
func IsImportableMediaURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, MediaURLPrefix)
}
