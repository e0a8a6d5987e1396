// Package normalize canonicalises raw marketplace listing values: colours,
// fuel/transmission/body categories, free-text descriptions, prices, mileages
// and registration dates. Every comparison elsewhere in the engine runs on
// the folded forms produced here, never on raw column values.
package normalize

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	spaceRun   = regexp.MustCompile(`\s+`)
	colorSplit = regexp.MustCompile(`[\/,;]| und | with `)
)

// StripAccents removes diacritical marks via NFKD decomposition, so "Grün"
// becomes "Grun". Case is preserved; "ß" carries no combining mark and stays.
func StripAccents(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Clean trims surrounding whitespace. Blank input collapses to "".
func Clean(s string) string {
	return strings.TrimSpace(s)
}

// Fold produces the comparison form used for categorical equality: trimmed,
// accent-stripped, lowercased.
func Fold(s string) string {
	return strings.ToLower(StripAccents(strings.TrimSpace(s)))
}

// Color maps a raw colour value onto the canonical palette (white, black,
// gray, blue, red, silver, green, brown, beige, orange, yellow). Unmapped
// values fall through as their folded literal, so the result is stable under
// repeated application. Blank input returns "".
func Color(raw string) string {
	text := Clean(raw)
	if text == "" {
		return ""
	}
	lowered := strings.ToLower(StripAccents(text))
	lowered = strings.ReplaceAll(lowered, "-", " ")
	lowered = strings.TrimSpace(spaceRun.ReplaceAllString(lowered, " "))

	if canonical, ok := colorCanonical[lowered]; ok {
		return canonical
	}

	// Composite values like "schwarz / weiss": first mappable part wins.
	for _, part := range colorSplit.Split(lowered, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if canonical, ok := colorCanonical[part]; ok {
			return canonical
		}
	}

	for _, group := range colorKeywords {
		for _, keyword := range group.keywords {
			if strings.Contains(lowered, keyword) {
				return group.canonical
			}
		}
	}

	return lowered
}

// Category folds a raw value and resolves it through an alias table,
// returning the folded literal when no alias matches.
func Category(raw string, aliases map[string]string) string {
	text := Clean(raw)
	if text == "" {
		return ""
	}
	key := strings.ToLower(StripAccents(text))
	if mapped, ok := aliases[key]; ok {
		return mapped
	}
	return key
}

// Fuel canonicalises a fuel type ("Benzin" → "petrol").
func Fuel(raw string) string {
	return Category(raw, fuelAliases)
}

// Transmission canonicalises a transmission type ("Automatik" → "automatic").
func Transmission(raw string) string {
	return Category(raw, transmissionAliases)
}

// Body canonicalises a body type ("Kombi" → "wagon").
func Body(raw string) string {
	return Category(raw, bodyAliases)
}

// ExtractYear pulls the first four-digit token out of a registration string,
// accepting both "2021-06-01" and "06/2021" shapes.
func ExtractYear(raw string) (int, bool) {
	if strings.TrimSpace(raw) == "" {
		return 0, false
	}
	for _, token := range strings.Split(strings.ReplaceAll(raw, "/", "-"), "-") {
		if len(token) != 4 || !isDigits(token) {
			continue
		}
		year, err := strconv.Atoi(token)
		if err != nil {
			continue
		}
		return year, true
	}
	return 0, false
}

// KnownColour reports whether c is one of the canonical colour groups.
// Colour lookups that miss every table return the folded literal instead,
// which callers may want to flag.
func KnownColour(c string) bool {
	_, ok := canonicalColours[c]
	return ok
}

// Price extracts a numeric price from free-form text such as "ca. 18500 EUR".
func Price(raw string) (float64, bool) {
	return numericValue(raw)
}

// Mileage extracts a numeric mileage; shares the price parsing rules.
func Mileage(raw string) (float64, bool) {
	return numericValue(raw)
}

// numericValue accepts a clean numeric string as-is; otherwise it keeps
// digits plus the first decimal separator ("." or ",") and parses the rest.
// A separator only counts once at least one digit precedes it, so the dot in
// "ca. 18500" is noise rather than a decimal point.
func numericValue(raw string) (float64, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return 0, false
	}
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return v, true
	}

	var b strings.Builder
	seenSep := false
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case (r == '.' || r == ',') && !seenSep && b.Len() > 0:
			b.WriteByte('.')
			seenSep = true
		}
	}
	cleaned := b.String()
	if cleaned == "" || cleaned == "." {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses the ISO-ish timestamp shapes stored in
// first_registration_raw, with or without a time component.
func ParseTimestamp(raw string) (time.Time, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, text); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// AgeMonths converts a first-registration date into whole months of age at
// the reference time. Registrations in the future count as zero months.
func AgeMonths(registration, now time.Time) int {
	if registration.After(now) {
		registration = now
	}
	months := (now.Year()-registration.Year())*12 + int(now.Month()) - int(registration.Month())
	if now.Day() < registration.Day() {
		months--
	}
	if months < 0 {
		months = 0
	}
	return months
}

// FreshnessDays measures how long ago a listing was last touched, in
// fractional days, floored at zero.
func FreshnessDays(updated, now time.Time) float64 {
	days := now.Sub(updated).Hours() / 24
	if days < 0 {
		return 0
	}
	return days
}

// Images decodes the images column, which stores a JSON array of URLs.
// Anything that is not a JSON array yields an empty list.
func Images(raw string) []string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return []string{}
	}
	var decoded []any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return []string{}
	}
	urls := make([]string, 0, len(decoded))
	for _, item := range decoded {
		if s, ok := item.(string); ok && s != "" {
			urls = append(urls, s)
		}
	}
	return urls
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
