package blob

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
)

// ErrUnsafePath marks a storage reference that is rejected outright:
// traversal segments or absolute paths. These are never silently corrected.
var ErrUnsafePath = errors.New("unsafe storage reference")

// Stored references have accumulated several shapes across backend
// migrations: bare keys, an early "public/" object-storage prefix, a
// fully-qualified "/<bucket>/public/" form, a "storage/" local-filesystem
// prefix, and a "bunny/" CDN prefix. Each rule strips one shape; the rules
// run in order until none applies, so stacked historical prefixes resolve
// too.
type prefixRule struct {
	name  string
	strip func(string) (string, bool)
}

var bucketPublicRe = regexp.MustCompile(`^/[^/]+/public/`)

var legacyPrefixRules = []prefixRule{
	{name: "bucket-public", strip: func(ref string) (string, bool) {
		if m := bucketPublicRe.FindString(ref); m != "" {
			return ref[len(m):], true
		}
		return ref, false
	}},
	{name: "public", strip: stripLiteral("public/")},
	{name: "storage", strip: stripLiteral("storage/")},
	{name: "bunny", strip: stripLiteral("bunny/")},
}

func stripLiteral(prefix string) func(string) (string, bool) {
	return func(ref string) (string, bool) {
		if strings.HasPrefix(ref, prefix) {
			return ref[len(prefix):], true
		}
		return ref, false
	}
}

// Canonicalize reduces a stored file reference to its bare backend-agnostic
// key. Inputs containing traversal segments or resolving to an absolute path
// are rejected with ErrUnsafePath.
func Canonicalize(ref string) (string, error) {
	key := strings.TrimSpace(ref)
	if key == "" {
		return "", fmt.Errorf("%w: empty reference", ErrUnsafePath)
	}
	if hasDotDot(key) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, ref)
	}
	for {
		stripped := false
		for _, rule := range legacyPrefixRules {
			var ok bool
			if key, ok = rule.strip(key); ok {
				stripped = true
			}
		}
		if !stripped {
			break
		}
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: absolute path %q", ErrUnsafePath, ref)
	}
	key = path.Clean(key)
	if key == "." || key == "" || strings.HasPrefix(key, "/") || hasDotDot(key) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, ref)
	}
	return key, nil
}

func hasDotDot(ref string) bool {
	for _, seg := range strings.FieldsFunc(ref, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}
