// Package viral implements the opportunity pipeline: spam filtering,
// keyword clustering, multi-factor scoring, and the build orchestration
// that turns raw signals into ranked content opportunities.
package viral

import "strings"

// stopwords is a mixed Dutch/English set of function words that carry no
// topical meaning. Tokens of length ≤ 2 are dropped before this check, so
// two-letter words never need to appear here.
var stopwords = map[string]struct{}{
	// English
	"the": {}, "and": {}, "for": {}, "with": {}, "you": {}, "are": {},
	"this": {}, "that": {}, "have": {}, "from": {}, "was": {}, "but": {},
	"not": {}, "can": {}, "all": {}, "your": {}, "how": {}, "what": {},
	"why": {}, "who": {}, "about": {}, "just": {}, "like": {}, "get": {},
	// Dutch
	"het": {}, "een": {}, "van": {}, "voor": {}, "met": {}, "naar": {},
	"ook": {}, "maar": {}, "als": {}, "dat": {}, "dit": {}, "zijn": {},
	"niet": {}, "over": {}, "bij": {}, "dan": {}, "wat": {}, "hoe": {},
}

// ExtractKeywords normalizes text to lowercase, replaces every character
// outside [a-z0-9\s] with a space, splits on whitespace, and keeps tokens
// longer than 2 characters that are not stopwords.
func ExtractKeywords(text string) map[string]struct{} {
	lower := strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	keywords := make(map[string]struct{})
	for _, tok := range strings.Fields(b.String()) {
		if len(tok) <= 2 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		keywords[tok] = struct{}{}
	}
	return keywords
}

// CountOverlap returns the size of the intersection of two keyword sets.
// Symmetric: CountOverlap(a, b) == CountOverlap(b, a).
func CountOverlap(a, b map[string]struct{}) int {
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	n := 0
	for k := range small {
		if _, ok := large[k]; ok {
			n++
		}
	}
	return n
}
