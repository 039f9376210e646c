package entities

import (
	"strings"
	"unicode"
)

// eventVerbs signal a happening; a headline containing one alongside an
// entity reads as an event phrase.
var eventVerbs = map[string]struct{}{
	"announces": {}, "announced": {}, "passes": {}, "passed": {},
	"proposes": {}, "proposed": {}, "approves": {}, "approved": {},
	"bans": {}, "banned": {}, "signs": {}, "signed": {},
	"launches": {}, "launched": {}, "raises": {}, "raised": {},
	"cuts": {}, "cut": {}, "resigns": {}, "resigned": {},
	"wins": {}, "won": {}, "vetoes": {}, "vetoed": {},
	"blocks": {}, "blocked": {}, "sues": {}, "sued": {},
	"merges": {}, "acquires": {}, "unveils": {}, "unveiled": {},
	"orders": {}, "ordered": {}, "warns": {}, "warned": {},
	"rejects": {}, "rejected": {}, "expands": {}, "expanded": {},
}

// policyKeywords maps policy domains to headline keywords.
var policyKeywords = map[string][]string{
	"healthcare":  {"health", "hospital", "medicare", "medicaid", "drug", "vaccine", "pandemic", "insurance"},
	"energy":      {"energy", "oil", "gas", "solar", "wind", "nuclear", "grid", "pipeline", "climate"},
	"education":   {"education", "school", "university", "student", "tuition", "curriculum"},
	"finance":     {"bank", "finance", "tax", "budget", "tariff", "inflation", "interest rate", "market"},
	"technology":  {"tech", "software", "chip", "cyber", "data", "privacy", "internet"},
	"defense":     {"defense", "military", "missile", "nato", "troops", "weapons"},
	"immigration": {"immigration", "border", "visa", "asylum", "migrant", "refugee"},
	"environment": {"environment", "emissions", "pollution", "wildlife", "forest", "epa"},
	"trade":       {"trade", "tariff", "export", "import", "sanctions", "customs"},
	"agriculture": {"agriculture", "farm", "crop", "livestock", "subsidy"},
}

// geographyTerms covers the regions the feed set routinely mentions.
var geographyTerms = map[string]string{
	"us": "us", "usa": "us", "u.s.": "us", "america": "us", "washington": "us",
	"eu": "eu", "europe": "eu", "brussels": "eu", "european": "eu",
	"uk": "uk", "britain": "uk", "london": "uk",
	"china": "china", "beijing": "china",
	"russia": "russia", "moscow": "russia",
	"germany": "germany", "berlin": "germany",
	"france": "france", "paris": "france",
	"japan": "japan", "tokyo": "japan",
	"india": "india", "delhi": "india",
	"canada": "canada", "ottawa": "canada",
	"greenland": "greenland",
	"ukraine": "ukraine", "kyiv": "ukraine",
}

// titleStopwords never start or count as entities even when capitalized
// (headline case capitalizes everything).
var titleStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "in": {}, "on": {}, "at": {},
	"to": {}, "for": {}, "and": {}, "or": {}, "with": {}, "by": {},
	"from": {}, "as": {}, "is": {}, "are": {}, "was": {}, "after": {},
	"over": {}, "amid": {}, "new": {}, "its": {}, "his": {}, "her": {},
}

// Heuristic is a dependency-free extractor: capitalized-run entity
// detection, verb-based event phrasing, and keyword tag maps. It is
// deliberately conservative; a missed tag costs less than a wrong one.
type Heuristic struct{}

func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

func (h *Heuristic) Extract(title string) Extraction {
	words := strings.Fields(title)
	lower := strings.ToLower(title)

	extraction := Extraction{
		Entities:      capitalizedRuns(words),
		PolicyDomains: matchKeywords(lower),
		Geographies:   matchGeographies(words),
	}

	extraction.IsEventPhrase = len(extraction.Entities) > 0 && containsEventVerb(words)

	return extraction
}

// capitalizedRuns collects maximal runs of capitalized tokens as entity
// candidates, skipping stopwords and event verbs.
func capitalizedRuns(words []string) []string {
	var (
		entities []string
		run      []string
	)

	flush := func() {
		if len(run) > 0 {
			entities = append(entities, strings.Join(run, " "))
			run = nil
		}
	}

	for _, word := range words {
		trimmed := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		lower := strings.ToLower(trimmed)

		if trimmed == "" || !startsUpper(trimmed) || isStopword(lower) || isEventVerb(lower) {
			flush()

			continue
		}

		run = append(run, lower)
	}

	flush()

	return entities
}

func matchKeywords(lowerTitle string) []string {
	var domains []string

	for policyDomain, keywords := range policyKeywords {
		for _, keyword := range keywords {
			if strings.Contains(lowerTitle, keyword) {
				domains = append(domains, policyDomain)

				break
			}
		}
	}

	return domains
}

func matchGeographies(words []string) []string {
	seen := make(map[string]struct{})

	var geographies []string

	for _, word := range words {
		lower := strings.ToLower(strings.Trim(word, ".,:;!?'\""))

		geo, ok := geographyTerms[lower]
		if !ok {
			continue
		}

		if _, dup := seen[geo]; dup {
			continue
		}

		seen[geo] = struct{}{}
		geographies = append(geographies, geo)
	}

	return geographies
}

func containsEventVerb(words []string) bool {
	for _, word := range words {
		if isEventVerb(strings.ToLower(strings.Trim(word, ".,:;!?'\""))) {
			return true
		}
	}

	return false
}

func isEventVerb(lower string) bool {
	_, ok := eventVerbs[lower]

	return ok
}

func isStopword(lower string) bool {
	_, ok := titleStopwords[lower]

	return ok
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}

	return false
}
