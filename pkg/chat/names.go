package chat

import (
	"strings"
	"sync"
	"unicode"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// StripMarkup removes ANSI markup and returns the plain text and its length.
func StripMarkup(s string) (string, int) {
	plain := ansi.Strip(s)
	return plain, len(plain)
}

// DisplayWidth returns the number of terminal cells s occupies.
func DisplayWidth(s string) int {
	return ansi.StringWidth(s)
}

// normalizeQuery strips markup and a surrounding <...> from a channel query.
func normalizeQuery(q string) string {
	clean, n := StripMarkup(q)
	if n >= 2 && clean[0] == '<' && clean[n-1] == '>' {
		return clean[1 : n-1]
	}
	return clean
}

// hasPrefixFold reports whether s begins with prefix, ignoring case.
func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// okName reports whether a channel name is acceptable once markup is
// stripped: non-empty, printable, no leading or trailing space.
func okName(name string) bool {
	plain, n := StripMarkup(name)
	if n == 0 {
		return false
	}
	if plain[0] == ' ' || plain[n-1] == ' ' {
		return false
	}
	for _, r := range plain {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// Collator orders names case-insensitively for a locale. A collate.Collator
// is not safe for concurrent use, so calls are serialized.
type Collator struct {
	mu sync.Mutex
	c  *collate.Collator
}

// NewCollator creates a collator for locale, falling back to English.
func NewCollator(locale string) *Collator {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &Collator{c: collate.New(tag, collate.IgnoreCase)}
}

// Compare orders a and b. Strings the collator treats as equal are ordered
// by their case-folded bytes so the order is total and matches the
// uniqueness rule.
func (c *Collator) Compare(a, b string) int {
	c.mu.Lock()
	r := c.c.CompareString(a, b)
	c.mu.Unlock()
	if r != 0 {
		return r
	}
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}
