package requests

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	scriptBlock = regexp.MustCompile(`(?is)<(script|style)[^>]*?>.*?</(script|style)>`)
	markupTag   = regexp.MustCompile(`(?s)</?[a-zA-Z!][^>]*>?`)
	blankRun    = regexp.MustCompile(`[ \t]+`)
)

// SanitizeEmail trims and lower-cases an address and drops characters that
// cannot appear in one.
func SanitizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII || unicode.IsSpace(r) || unicode.IsControl(r) {
			return -1
		}
		switch r {
		case '<', '>', '"', '(', ')', ',', ';', ':', '\\', '[', ']':
			return -1
		}
		return r
	}, email)
}

// SanitizeText strips markup and control characters from free text.
// Line breaks are kept, runs of spaces collapse and each line is trimmed.
func SanitizeText(s string) string {
	s = scriptBlock.ReplaceAllString(s, "")
	s = markupTag.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.Map(func(r rune) rune {
		if r == '\n' {
			return r
		}
		if r == '\t' || r == '\r' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(blankRun.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
