package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// unsafeFileChars are rejected in artifact names.
const unsafeFileChars = "/\\:*?\"<>|"

// NormalizeName trims surrounding whitespace and converts name to NFC.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// UnsafeFileName reports whether name contains path separators, characters
// that are unsafe on common filesystems, control characters, or is a dot
// segment.
func UnsafeFileName(name string) bool {
	if name == "." || name == ".." {
		return true
	}
	if strings.ContainsAny(name, unsafeFileChars) {
		return true
	}
	return strings.IndexFunc(name, unicode.IsControl) >= 0
}
