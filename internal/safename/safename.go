// Package safename turns filenames recovered from untrusted payloads into
// names that are safe to create inside a chosen directory.
package safename

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Fallback is used when nothing usable is left of a name
const Fallback = "payload.bin"

// maxLen is the common filesystem limit on one path element, in bytes
const maxLen = 255

// MaxPrefixLen bounds prefixes given to WithPrefix, leaving most of the
// path element for the name itself
const MaxPrefixLen = 64

var ErrBadPrefix = errors.New("invalid filename prefix")

// CheckPrefix reports whether prefix can start a name built by WithPrefix:
// at most MaxPrefixLen bytes of valid UTF-8, not starting with a dot, with
// no separators, control characters, or characters reserved on Windows.
func CheckPrefix(prefix string) error {
	switch {
	case len(prefix) > MaxPrefixLen:
		return fmt.Errorf("%w: %d bytes, at most %d allowed", ErrBadPrefix, len(prefix), MaxPrefixLen)
	case !utf8.ValidString(prefix):
		return fmt.Errorf("%w: not valid UTF-8", ErrBadPrefix)
	case strings.HasPrefix(prefix, "."):
		return fmt.Errorf("%w: %q starts with a dot", ErrBadPrefix, prefix)
	case strings.IndexFunc(prefix, unsafeRune) >= 0:
		return fmt.Errorf("%w: %q contains a separator or reserved character", ErrBadPrefix, prefix)
	}
	return nil
}

func unsafeRune(r rune) bool {
	return unicode.IsControl(r) || strings.ContainsRune(`/\<>:"|?*`, r)
}

// Sanitize reduces name to a single path element. The result is never
// empty, ".", "..", or longer than 255 bytes, and contains no path
// separators, control characters, or characters reserved on Windows.
func Sanitize(name string) string {
	name = norm.NFC.String(strings.ToValidUTF8(name, ""))

	// Keep only the last element, whichever separator the sender used
	name = strings.ReplaceAll(name, `\`, "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}

	name = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case strings.ContainsRune(`<>:"|?*`, r):
			return '_'
		}
		return r
	}, name)

	// Hidden files and "." / ".." are not allowed
	name = strings.TrimLeft(name, ". ")
	name = strings.TrimRight(name, ". ")

	name = truncate(name, maxLen)
	if name == "" {
		return Fallback
	}
	return name
}

// WithPrefix sanitizes name and prepends prefix, keeping the result
// within the length limit. The prefix must pass CheckPrefix.
func WithPrefix(prefix, name string) string {
	name = Sanitize(name)
	if len(prefix)+len(name) <= maxLen {
		return prefix + name
	}
	return prefix + truncate(name, maxLen-len(prefix))
}

// truncate shortens s to at most n bytes without splitting a rune,
// keeping the extension when there is room for it
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}

	ext := ""
	if i := strings.LastIndexByte(s, '.'); i > 0 && len(s)-i <= 16 && len(s)-i < n {
		ext = s[i:]
		s = s[:i]
	}

	limit := n - len(ext)
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + ext
}
