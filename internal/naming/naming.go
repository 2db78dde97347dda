// Package naming encodes snapshot identifiers and the directory names derived
// from mountpoints.
//
// An identifier is a local timestamp in a fixed-width layout followed by a
// suffix, e.g. "2024-03-05T10-30-00-auto". Identifiers sharing a suffix sort
// chronologically under plain string comparison.
package naming

import (
	"strings"
	"time"
)

// Layout is the timestamp part of an identifier. It contains no colons so the
// identifier stays a valid path segment everywhere.
const Layout = "2006-01-02T15-04-05"

// DefaultSeparator is inserted between timestamp and suffix when the suffix
// does not start with one of Separators.
const DefaultSeparator = "-"

const Separators = "-_.@"

// NormalizeSuffix returns suffix with a leading separator.
func NormalizeSuffix(suffix string) string {
	if suffix == "" || strings.ContainsRune(Separators, rune(suffix[0])) {
		return suffix
	}
	return DefaultSeparator + suffix
}

// Encode returns the identifier for t (in local time, second precision) and suffix.
func Encode(t time.Time, suffix string) string {
	return t.In(time.Local).Format(Layout) + NormalizeSuffix(suffix)
}

// Decode parses an identifier produced by Encode with the same suffix. It
// reports false for names with another suffix or an unparseable timestamp;
// callers are expected to skip such entries.
func Decode(name, suffix string) (time.Time, bool) {
	suffix = NormalizeSuffix(suffix)
	if !strings.HasSuffix(name, suffix) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(name, suffix)
	if len(stamp) != len(Layout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(Layout, stamp, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// EscapeMountpoint turns a mountpoint into a single path segment: "%" is
// doubled and every "/" becomes "%".
func EscapeMountpoint(mountpoint string) string {
	return strings.ReplaceAll(strings.ReplaceAll(mountpoint, "%", "%%"), "/", "%")
}
