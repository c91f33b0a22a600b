// Package registry implements the two agent-catalog backends
// (container and WASM), their shared keyword/semantic search, and the
// cross-runtime arbitration that picks between their results.
package registry

import "strings"

type suffixRule struct {
	suffix    string
	minRemain int
}

// suffixRules is ordered longest-compound-first so e.g. "calculations"
// matches "ations" before the shorter "s" rule would strip only the
// plural.
var suffixRules = []suffixRule{
	{"ications", 5},
	{"ational", 5},
	{"ations", 5},
	{"ating", 5},
	{"uting", 5},
	{"izing", 5},
	{"ising", 5},
	{"ition", 5},
	{"ation", 5},
	{"ment", 4},
	{"ness", 4},
	{"able", 4},
	{"ible", 4},
	{"ical", 4},
	{"ally", 4},
	{"ting", 4},
	{"ive", 3},
	{"ful", 3},
	{"ous", 3},
	{"ize", 3},
	{"ise", 3},
	{"ate", 3},
	{"ing", 3},
	{"ion", 3},
	{"ed", 2},
	{"er", 2},
	{"ly", 2},
	{"al", 2},
	{"s", 2},
}

// stem applies a suffix-stripping stemmer: the longest matching
// compound-then-simple suffix is removed (first match wins, since the
// table is ordered longest-first), never leaving fewer than the rule's
// minRemain characters. A trailing 'e' is then stripped from stems
// longer than 4 characters for consistency (compute -> comput).
func stem(word string) string {
	word = strings.ToLower(word)

	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) && len(word)-len(rule.suffix) >= rule.minRemain {
			word = word[:len(word)-len(rule.suffix)]
			break
		}
	}

	if strings.HasSuffix(word, "e") && len(word) > 4 {
		word = word[:len(word)-1]
	}

	return word
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "to": true, "for": true,
	"and": true, "or": true, "in": true, "on": true, "at": true, "is": true,
	"it": true, "be": true, "as": true, "with": true,
}

// stemmedKeywords tokenizes text on whitespace, strips punctuation,
// drops stop words and tokens of 2 characters or fewer, and stems
// what's left.
func stemmedKeywords(text string) map[string]bool {
	out := map[string]bool{}
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = cleanWord(word)
		if len(word) <= 2 || stopWords[word] {
			continue
		}
		out[stem(word)] = true
	}
	return out
}

func cleanWord(word string) string {
	var b strings.Builder
	for _, r := range word {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if b[k] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
