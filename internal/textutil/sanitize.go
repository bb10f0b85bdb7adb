package textutil

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// pathHostile maps characters that break common filesystems onto safe
// stand-ins.
var pathHostile = strings.NewReplacer(
	"<", "-",
	">", "-",
	":", "-",
	"\"", "'",
	"\\", "-",
	"|", "-",
	"?", "",
	"*", "",
)

// SanitizeRelPath normalizes a library-relative path: NFC normalization,
// control characters stripped, filesystem-hostile characters replaced, and
// empty or dot-only segments dropped. Separators in the input are preserved
// as directory boundaries.
func SanitizeRelPath(rel string) string {
	rel = norm.NFC.String(rel)
	segments := strings.Split(filepath.ToSlash(rel), "/")
	cleaned := make([]string, 0, len(segments))
	for _, segment := range segments {
		segment = sanitizeSegment(segment)
		if segment == "" || segment == "." || segment == ".." {
			continue
		}
		cleaned = append(cleaned, segment)
	}
	return filepath.Join(cleaned...)
}

func sanitizeSegment(segment string) string {
	segment = pathHostile.Replace(segment)
	var b strings.Builder
	b.Grow(len(segment))
	for _, r := range segment {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(strings.Trim(b.String(), "."))
}
