package mailboxer

import (
	"strings"
	"unicode"
)

// Cleaner normalizes user-supplied text before validation. It is applied to
// every subject and body, and to conversation subjects.
type Cleaner interface {
	Clean(text string) string
}

// CleanerFunc adapts a function to Cleaner.
type CleanerFunc func(string) string

func (f CleanerFunc) Clean(text string) string { return f(text) }

// DefaultCleaner removes control characters other than tab and line breaks
// and trims surrounding whitespace.
func DefaultCleaner() Cleaner {
	return CleanerFunc(func(text string) string {
		cleaned := strings.Map(func(r rune) rune {
			if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
				return -1
			}
			return r
		}, text)
		return strings.TrimSpace(cleaned)
	})
}
