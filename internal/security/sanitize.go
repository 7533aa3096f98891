package security

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var (
	// Safe pattern for deployment names
	siteNamePattern = regexp.MustCompile(`^[a-z0-9-]+$`)
)

// allowedExtensions is the set of file extensions (lowercase, without
// dot) permitted inside an uploaded archive. Anything else is excluded.
var allowedExtensions = map[string]bool{
	"html": true, "htm": true, "css": true, "js": true,
	"json": true, "txt": true, "md": true,
	"jpg": true, "jpeg": true, "png": true, "gif": true,
	"svg": true, "ico": true, "webp": true,
	"woff": true, "woff2": true, "ttf": true, "eot": true,
}

// allowedDotfiles are the only hidden basenames permitted in an archive.
var allowedDotfiles = map[string]bool{
	".htaccess": true,
}

// ValidateSiteName ensures a deployment name is safe for use in URLs and
// as a provider project name.
func ValidateSiteName(name string) error {
	if name == "" {
		return fmt.Errorf("site name cannot be empty")
	}
	if !siteNamePattern.MatchString(name) {
		return fmt.Errorf("site name contains invalid characters (only a-z, 0-9, - allowed)")
	}
	return nil
}

// IsSafeFile reports whether an archive entry path may be included in a
// deployment. It rejects path traversal attempts, blocks hidden files
// apart from a small set of conventional exceptions, and enforces an
// extension allow-list for everything else.
func IsSafeFile(entryPath string) bool {
	// Traversal outside the archive root.
	if strings.Contains(entryPath, "..") || strings.Contains(entryPath, "//") {
		return false
	}

	base := path.Base(entryPath)
	if strings.HasPrefix(base, ".") {
		return allowedDotfiles[base]
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(entryPath), "."))
	return allowedExtensions[ext]
}
