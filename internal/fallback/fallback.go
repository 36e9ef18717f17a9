// Package fallback decides whether an assistant answer is a "could not confirm"
// reply that must be escalated to a subject-matter expert instead of rated.
package fallback

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CanonicalPhrase is the fragment every fallback answer carries once normalized.
const CanonicalPhrase = "not able to confirm based on the current guidance"

// Matcher classifies an answer. serverFlag is the backend's own verdict and wins
// when set.
type Matcher interface {
	IsFallback(text string, serverFlag bool) bool
}

// MatcherFunc adapts a plain function to Matcher.
type MatcherFunc func(text string, serverFlag bool) bool

func (f MatcherFunc) IsFallback(text string, serverFlag bool) bool {
	return f(text, serverFlag)
}

var (
	// "i am not able to", "you're not able to", "i'm not able to"
	notAblePattern = regexp.MustCompile(`(?i)\b(?:i|you)(?:\s+am|\s+are|'m|'re)?\s+not\s+able\s+to\s+confirm\s+based\s+on\s+the\s+current\s+guidance`)
	// "i cannot", "you can't", "i can not"
	cannotPattern = regexp.MustCompile(`(?i)\b(?:i|you)(?:\s+am|\s+are|'m|'re)?\s+(?:cannot|can't|can\s+not)\s+(?:be\s+able\s+to\s+)?confirm\s+based\s+on\s+the\s+current\s+guidance`)

	quoteReplacer = strings.NewReplacer(
		"‘", "'", "’", "'", "‚", "'", "‛", "'", "′", "'",
		"“", `"`, "”", `"`, "„", `"`, "‟", `"`, "″", `"`,
	)
)

// English is the default matcher for the English fallback phrasing.
var English Matcher = MatcherFunc(isEnglishFallback)

// IsFallbackAnswer classifies text with the English matcher.
func IsFallbackAnswer(text string, serverFlag bool) bool {
	return English.IsFallback(text, serverFlag)
}

// Normalize lower-cases text, applies NFKC, straightens curly quotes, collapses
// whitespace runs to one space and trims.
func Normalize(text string) string {
	s := strings.ToLower(text)
	s = norm.NFKC.String(s)
	s = quoteReplacer.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func isEnglishFallback(text string, serverFlag bool) bool {
	if serverFlag {
		return true
	}
	if text == "" {
		return false
	}

	normalized := Normalize(text)
	if normalized == "" {
		return false
	}

	// The substring check already covers most phrasings; the patterns catch the
	// "cannot" forms and keep parity with the wording the backend produces.
	if strings.Contains(normalized, CanonicalPhrase) {
		return true
	}
	return notAblePattern.MatchString(normalized) || cannotPattern.MatchString(normalized)
}
