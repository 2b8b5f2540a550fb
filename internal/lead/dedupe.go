package lead

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// keyDelimiter joins the normalized key parts. None of the parts can
// contain it after normalization.
const keyDelimiter = "|"

// DedupeKey builds the canonical duplicate-detection key for a lead.
// Two leads with the same key are considered the same business within a
// run. Empty fields normalize to the empty string and still participate
// in the key, so two all-empty-field leads with the same name collide —
// intentional strictness.
func DedupeKey(name, website, phone, zip string) string {
	parts := []string{
		NormalizeName(name),
		NormalizeDomain(website),
		NormalizePhone(phone),
		strings.TrimSpace(zip),
	}
	return strings.Join(parts, keyDelimiter)
}

// NormalizeName lowercases and strips everything but letters and digits.
// Accented characters are NFKD-decomposed first so "Café" and "Cafe"
// normalize identically.
func NormalizeName(name string) string {
	if name == "" {
		return ""
	}
	decomposed := norm.NFKD.String(strings.ToLower(name))
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// NormalizeDomain reduces a URL to its bare host: scheme and leading
// "www." stripped, path discarded.
func NormalizeDomain(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	s := strings.ToLower(strings.TrimSpace(rawURL))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return s
}

// NormalizePhone strips everything but digits.
func NormalizePhone(phone string) string {
	if phone == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
