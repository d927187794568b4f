// Package textx provides small text utilities used across the project.
package textx

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// SanitizeText composes s to NFC, drops control characters except tab/newline
// and trims spaces. CRLF line endings become LF.
func SanitizeText(s string) string {
	s = norm.NFC.String(strings.ReplaceAll(s, "\r\n", "\n"))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == utf8.RuneError {
			continue
		}
		if r == '\n' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// TrimSentence shortens s to at most maxRunes runes, cutting at the last
// sentence terminator when one sits in the second half of the kept text.
func TrimSentence(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	kept := []rune(s)[:maxRunes]
	cut := string(kept)
	if idx := strings.LastIndexAny(cut, ".!?"); idx >= len(cut)/2 {
		return cut[:idx+1]
	}
	return strings.TrimSpace(cut) + "…"
}
