// Package pathutil provides normalization and manipulation helpers for
// remote object keys and storage URIs.
package pathutil

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Normalize cleans a key and ensures forward slashes.
// It applies: ToSlash → Clean → Trim slashes. Returns "" for empty keys.
func Normalize(key string) string {
	if key == "" {
		return ""
	}

	key = strings.ReplaceAll(key, "\\", "/")
	key = filepath.Clean(key)
	key = filepath.ToSlash(key)
	key = strings.Trim(key, "/")

	if key == "." {
		return ""
	}
	return key
}

// SplitURI splits a storage URI of the form scheme://container/key into its
// container (bucket) and key parts. The key may be empty. Trailing separators
// on the key are preserved so directory semantics survive the round trip.
func SplitURI(uri string) (container, key string, err error) {
	i := strings.Index(uri, "://")
	if i < 0 {
		return "", "", fmt.Errorf("uri %q has no scheme", uri)
	}
	rest := strings.TrimPrefix(uri[i+3:], "/")
	if rest == "" {
		return "", "", fmt.Errorf("uri %q has no container", uri)
	}
	parts := strings.SplitN(rest, "/", 2)
	container = parts[0]
	if len(parts) == 2 {
		key = parts[1]
	}
	return container, key, nil
}

// JoinKey joins a prefix with a relative name to form a full object key.
// The name is normalized first, so the empty prefix and platform separators
// are handled correctly.
func JoinKey(prefix, name string) string {
	name = Normalize(name)
	if name == "" {
		return prefix
	}
	if prefix == "" {
		return name
	}
	return strings.TrimSuffix(prefix, "/") + "/" + name
}
