// Package pathutil implements relative-path (RP) normalization, managed-root
// prefix tests, shell-style ignore glob matching, and symlink containment
// checks shared by every other hometree component.
package pathutil

import (
	"fmt"
	"strings"
)

// RP is a path normalized relative to the home root: forward slashes, no
// leading slash, no "." or ".." segments.
type RP string

// New validates and returns p as an RP. A trailing slash is always
// preserved (managed-root prefixes use it); callers that compare paths
// without it use trimmed or Under.
func New(p string) (RP, error) {
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	clean := strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(clean, "/") {
		return "", fmt.Errorf("path %q must not be absolute", p)
	}
	trailingSlash := strings.HasSuffix(clean, "/") && clean != "/"
	segs := strings.Split(strings.TrimSuffix(clean, "/"), "/")
	for _, s := range segs {
		switch s {
		case "", ".":
			return "", fmt.Errorf("path %q contains an empty or '.' segment", p)
		case "..":
			return "", fmt.Errorf("path %q contains a '..' segment", p)
		}
	}
	out := strings.Join(segs, "/")
	if trailingSlash {
		out += "/"
	}
	return RP(out), nil
}

// MustNew panics on invalid input; intended for tests and literal constants.
func MustNew(p string) RP {
	rp, err := New(p)
	if err != nil {
		panic(err)
	}
	return rp
}

// String returns the RP's raw string value.
func (r RP) String() string { return string(r) }

// trimmed returns r without its trailing slash, if any.
func (r RP) trimmed() string { return strings.TrimSuffix(string(r), "/") }

// Depth counts path segments; used to order plan actions parent-before-child.
func (r RP) Depth() int {
	return len(strings.Split(r.trimmed(), "/"))
}

// Under reports whether p equals root or is a descendant of root, where
// root is treated as a directory prefix regardless of trailing slash.
func Under(root, p RP) bool {
	rootTrim := root.trimmed()
	pTrim := p.trimmed()
	if pTrim == rootTrim {
		return true
	}
	return strings.HasPrefix(pTrim, rootTrim+"/")
}

// Join concatenates relative segments into a single RP-valid string.
func Join(parts ...string) string {
	return strings.Join(parts, "/")
}
