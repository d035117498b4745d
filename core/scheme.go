package core

import "strings"

// FileScheme is the URI scheme for the local filesystem backend.
const FileScheme = "file"

const filePrefix = FileScheme + "://"

// Scheme returns the URI scheme of a path. A path without an explicit
// scheme prefix is treated as local and reported as FileScheme.
func Scheme(path string) string {
	i := strings.Index(path, "://")
	if i <= 0 {
		return FileScheme
	}
	return path[:i]
}

// IsRemote reports whether the path refers to a non-local backend.
func IsRemote(path string) bool {
	return Scheme(path) != FileScheme
}

// StripFilePrefix drops the file:// prefix from a path if present. It is
// idempotent and leaves remote URIs untouched.
func StripFilePrefix(path string) string {
	if strings.HasPrefix(path, filePrefix) {
		return path[len(filePrefix):]
	}
	return path
}
