package normalize

import (
	"regexp"
	"unicode/utf8"
)

var tokenSplit = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// TextProfile is the tokenised view of a listing description used for
// textual similarity: a token set, the detected option tags, and the folded
// text the tags were matched against.
type TextProfile struct {
	Tokens   map[string]struct{}
	Features map[string]struct{}
	Lowered  string
}

// BuildTextProfile folds the description once and derives both token and
// feature sets from it.
func BuildTextProfile(description string) *TextProfile {
	lowered := Fold(description)
	return &TextProfile{
		Tokens:   Tokenize(description),
		Features: OptionFeatures(lowered),
		Lowered:  lowered,
	}
}

// Tokenize splits text on non-word runes and keeps the informative tokens:
// stopwords go, as does anything of two runes or fewer unless purely numeric
// ("19" in "19 Zoll" survives, "ab" does not).
func Tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	if s == "" {
		return tokens
	}
	for _, token := range tokenSplit.Split(Fold(s), -1) {
		if token == "" {
			continue
		}
		if _, stop := stopwords[token]; stop {
			continue
		}
		if utf8.RuneCountInString(token) <= 2 && !isDigits(token) {
			continue
		}
		tokens[token] = struct{}{}
	}
	return tokens
}

// OptionFeatures scans text for recognised equipment cues and returns the
// matching tags (heated_seats, camera_360, ...).
func OptionFeatures(s string) map[string]struct{} {
	hits := make(map[string]struct{})
	for _, pattern := range optionPatterns {
		if pattern.re.MatchString(s) {
			hits[pattern.key] = struct{}{}
		}
	}
	return hits
}

// OptionLabel resolves a feature tag to its display label, falling back to
// the tag itself for unknown keys.
func OptionLabel(key string) string {
	if label, ok := optionLabels[key]; ok {
		return label
	}
	return key
}
