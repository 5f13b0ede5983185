package validate

import "strings"

// irregularPlurals are plural words that do not end in s.
var irregularPlurals = map[string]bool{
	"men":      true,
	"women":    true,
	"children": true,
	"people":   true,
	"feet":     true,
	"teeth":    true,
	"geese":    true,
	"mice":     true,
	"oxen":     true,
	"indices":  true,
	"vertices": true,
	"matrices": true,
	"criteria": true,
}

// singularLookalikes are singular words that end in s and would
// otherwise read as plural.
var singularLookalikes = map[string]bool{
	"status": true,
	"alias":  true,
	"atlas":  true,
	"bias":   true,
	"bus":    true,
	"gas":    true,
	"lens":   true,
	"chaos":  true,
	"cosmos": true,
	"virus":  true,
	"bonus":  true,
	"corpus": true,
	"campus": true,
	"census": true,
	"plus":   true,
}

// wordIsPlural guesses the grammatical number of a single lowercase
// word. The heuristic is deliberately simple and deterministic; words
// it cannot judge belong in the plural exceptions list of the rule
// table.
func wordIsPlural(word string) bool {
	word = strings.ToLower(word)
	if irregularPlurals[word] {
		return true
	}
	if singularLookalikes[word] {
		return false
	}
	switch {
	case strings.HasSuffix(word, "ss"),
		strings.HasSuffix(word, "us"),
		strings.HasSuffix(word, "sis"),
		strings.HasSuffix(word, "xis"):
		return false
	case strings.HasSuffix(word, "s"):
		return true
	}
	return false
}

// lastWord returns the final dash-separated word of a scope name,
// which is the word plurality rules apply to.
func lastWord(name string) string {
	if i := strings.LastIndex(name, "-"); i >= 0 {
		return name[i+1:]
	}
	return name
}
