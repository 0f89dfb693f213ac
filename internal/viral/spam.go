package viral

import (
	"strings"
	"unicode"
)

// spamPhrases is the fixed blocklist checked against the lowercased
// title + excerpt concatenation.
var spamPhrases = []string{
	"giveaway",
	"dm me",
	"onlyfans",
	"get rich quick",
	"click link in bio",
	"free crypto",
	"follow for follow",
	"cashapp",
	"limited time offer",
}

// specialChars are the characters counted for the density heuristic.
const specialChars = "!?$%&*"

// maxSpecialCharRatio is the special-character-to-title-length ceiling.
const maxSpecialCharRatio = 0.15

// SpamInput is the minimal view of a signal the filter needs.
type SpamInput struct {
	Title      string
	RawExcerpt string
}

// IsSpam is a pure predicate rejecting low-quality signals before they
// reach clustering and scoring. A signal is spam when any of the following
// holds:
//   - the lowercased title+excerpt contains a blocklisted phrase,
//   - the title is entirely uppercase and longer than 20 characters
//     (short acronym-style titles pass),
//   - the ratio of !?$%&* characters to title length exceeds 0.15.
func IsSpam(in SpamInput) bool {
	haystack := strings.ToLower(in.Title + " " + in.RawExcerpt)
	for _, phrase := range spamPhrases {
		if strings.Contains(haystack, phrase) {
			return true
		}
	}

	if len(in.Title) > 20 && isAllUpper(in.Title) {
		return true
	}

	if len(in.Title) > 0 {
		special := 0
		for _, r := range in.Title {
			if strings.ContainsRune(specialChars, r) {
				special++
			}
		}
		if float64(special)/float64(len([]rune(in.Title))) > maxSpecialCharRatio {
			return true
		}
	}

	return false
}

// isAllUpper reports whether s contains at least one letter and no
// lowercase letters.
func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}
