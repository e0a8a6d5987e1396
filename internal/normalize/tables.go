package normalize

import "regexp"

// Alias tables are written in their source spelling (German market data plus
// the common French/Italian/Spanish trade names). Keys are folded through the
// same transform as lookups when the tables are built, so accented spellings
// like "geländewagen" resolve against accent-stripped input.
var (
	colorCanonical      = foldKeys(buildColorCanonical())
	colorKeywords       = foldKeywordGroups(buildColorKeywords())
	fuelAliases         = foldKeys(buildFuelAliases())
	transmissionAliases = foldKeys(buildTransmissionAliases())
	bodyAliases         = foldKeys(buildBodyAliases())
	stopwords           = foldSet(buildStopwords())
	optionPatterns      = buildOptionPatterns()
	optionLabels        = buildOptionLabels()
	canonicalColours    = buildCanonicalColourSet()
)

func buildColorCanonical() map[string]string {
	return map[string]string{
		"weiss":          "white",
		"weiß":           "white",
		"weiß metallic":  "white",
		"weiss metallic": "white",
		"white":          "white",
		"candy white":    "white",
		"polar white":    "white",
		"pure white":     "white",
		"alpinweiss":     "white",
		"alpine white":   "white",
		"blanc":          "white",
		"bianco":         "white",

		"schwarz":          "black",
		"schwarz metallic": "black",
		"black":            "black",
		"deep black":       "black",
		"noir":             "black",
		"nero":             "black",

		"grau":          "gray",
		"grau metallic": "gray",
		"graphit":       "gray",
		"graphite":      "gray",
		"grey":          "gray",
		"gris":          "gray",
		"anthrazit":     "gray",
		"anthracite":    "gray",

		"blau": "blue",
		"azul": "blue",
		"bleu": "blue",
		"blu":  "blue",

		"rot":   "red",
		"rosso": "red",
		"rouge": "red",

		"silber":          "silver",
		"silber metallic": "silver",
		"silver":          "silver",
		"argent":          "silver",

		"grun":  "green",
		"grün":  "green",
		"verde": "green",
		"vert":  "green",

		"braun":  "brown",
		"marron": "brown",
		"bruin":  "brown",

		"beige": "beige",
		"sand":  "beige",
		"creme": "beige",

		"orange": "orange",

		"gelb":     "yellow",
		"amarillo": "yellow",
		"giallo":   "yellow",
	}
}

// colorKeywordGroup pairs a canonical colour with substring cues used when no
// exact alias matches. Group order matters: the first hit wins, so the more
// specific cues ("pure white") sit ahead of the generic metal tones.
type colorKeywordGroup struct {
	canonical string
	keywords  []string
}

func buildColorKeywords() []colorKeywordGroup {
	return []colorKeywordGroup{
		{"white", []string{"weiss", "weiß", "white", "bianco", "blanc", "blanco", "alpin", "arctic", "polar", "candy", "pure white", "snow"}},
		{"black", []string{"schwarz", "black", "noir", "nero", "obsidian", "midnight", "deep black", "onyx"}},
		{"gray", []string{"grau", "grau metallic", "gray", "gris", "anthracite", "graphit", "graphite", "slate"}},
		{"blue", []string{"blau", "bleu", "blu", "azul", "blue", "navy", "ocean"}},
		{"red", []string{"rot", "rosso", "rouge", "red", "crimson"}},
		{"silver", []string{"silber", "silver", "argent", "platinum", "platino"}},
		{"green", []string{"grun", "gruen", "grün", "verde", "vert", "green"}},
		{"brown", []string{"braun", "marron", "brown", "bruin", "bronze"}},
		{"beige", []string{"beige", "sand", "creme", "champagne", "ivory"}},
		{"orange", []string{"orange", "sunset"}},
		{"yellow", []string{"gelb", "giallo", "amarillo", "yellow"}},
	}
}

func buildFuelAliases() map[string]string {
	return map[string]string{
		"benzin":        "petrol",
		"elektro":       "electric",
		"diesel":        "diesel",
		"elektro/benzin": "hybrid",
		"plugin-hybrid": "plug-in hybrid",
		"hybrid":        "hybrid",
		"lpg":           "lpg",
		"cng":           "cng",
	}
}

func buildTransmissionAliases() map[string]string {
	return map[string]string{
		"automatik":      "automatic",
		"schaltgetriebe": "manual",
		"manuell":        "manual",
		"tiptronic":      "automatic",
	}
}

func buildBodyAliases() map[string]string {
	return map[string]string{
		"suv/geländewagen/pickup": "suv",
		"geländewagen":            "suv",
		"suv":                     "suv",
		"limousine":               "sedan",
		"kombi":                   "wagon",
		"coupe":                   "coupe",
		"coupé":                   "coupe",
		"cabrio":                  "convertible",
		"kabriolett":              "convertible",
		"kastenwagen hochdach":    "van",
		"kastenwagen":             "van",
		"transporter":             "van",
		"van":                     "van",
		"kleinwagen":              "hatchback",
		"schräghecklimousine":     "hatchback",
	}
}

func buildStopwords() []string {
	return []string{
		"der", "die", "das", "und", "oder", "mit", "ein", "eine", "den",
		"von", "für", "auf", "zum", "zur",
		"the", "and", "for", "with",
		"einmal",
	}
}

// optionPattern ties an equipment tag to the regexp that detects it in a
// listing description. Patterns run against accent-stripped lowercase text.
type optionPattern struct {
	key string
	re  *regexp.Regexp
}

func buildOptionPatterns() []optionPattern {
	return []optionPattern{
		{"adaptive_cruise_control", regexp.MustCompile(`(?i)\b(acc|adaptive(?:r)? cruise(?: control)?|abstandsregeltempomat|distronic)\b`)},
		{"camera_360", regexp.MustCompile(`(?i)\b360\s*(?:grad|camera|kamera|°)\b`)},
		{"carplay_android_auto", regexp.MustCompile(`(?i)\b(carplay|android\s*auto|apple\s*carplay)\b`)},
		{"heated_seats", regexp.MustCompile(`(?i)\bsitzheizung\b|\bheated seats?\b`)},
		{"matrix_led", regexp.MustCompile(`(?i)\bmatrix\s*led\b`)},
		{"panoramic_roof", regexp.MustCompile(`(?i)\bpanoram(adach|a dach|ic roof)\b`)},
		{"dab_plus", regexp.MustCompile(`(?i)\bdab\+?\b`)},
		{"park_assist", regexp.MustCompile(`(?i)\bpark(assist|pilot|hilfe|tronic|distance)\b`)},
	}
}

func buildOptionLabels() map[string]string {
	return map[string]string{
		"adaptive_cruise_control": "Adaptive Cruise / ACC",
		"camera_360":              "360° Camera",
		"carplay_android_auto":    "CarPlay / Android Auto",
		"heated_seats":            "Heated Seats",
		"matrix_led":              "Matrix LED",
		"panoramic_roof":          "Panoramic Roof",
		"dab_plus":                "DAB+ Digital Radio",
		"park_assist":             "Parking Assist",
	}
}

func buildCanonicalColourSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, canonical := range buildColorCanonical() {
		set[canonical] = struct{}{}
	}
	for _, group := range buildColorKeywords() {
		set[group.canonical] = struct{}{}
	}
	return set
}

func foldKeys(src map[string]string) map[string]string {
	folded := make(map[string]string, len(src))
	for key, value := range src {
		folded[Fold(key)] = value
	}
	return folded
}

func foldKeywordGroups(groups []colorKeywordGroup) []colorKeywordGroup {
	out := make([]colorKeywordGroup, 0, len(groups))
	for _, group := range groups {
		keywords := make([]string, 0, len(group.keywords))
		for _, kw := range group.keywords {
			keywords = append(keywords, Fold(kw))
		}
		out = append(out, colorKeywordGroup{canonical: group.canonical, keywords: keywords})
	}
	return out
}

func foldSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[Fold(word)] = struct{}{}
	}
	return set
}
