// Package classify assigns a refined task to one of the fixed agent
// classes by deterministic keyword match. It is pure and side-effect
// free: same input always yields the same class.
package classify

import "strings"

// Class is one of the fixed agent categories the build pipeline can
// generate code for.
type Class string

const (
	ClassResearch  Class = "research"
	ClassCompute   Class = "compute"
	ClassData      Class = "data"
	ClassCode      Class = "code"
	ClassSynthesis Class = "synthesis"
)

// Result is what the classifier emits: the chosen class, the
// credentials that class requires, and a short human-readable reason
// (which keyword group matched, or that it fell through to a default).
type Result struct {
	Class               Class
	RequiredCredentials []string
	Reason              string
}

type keywordGroup struct {
	class       Class
	keywords    []string
	credentials []string
}

var questionWords = []string{"who", "what", "when", "where", "why", "how", "which"}

// groups is priority-ordered: the first group whose keyword appears in
// the task text wins, matching spec's priority-ordered table exactly.
var groups = []keywordGroup{
	{
		class: ClassResearch,
		keywords: []string{
			"research", "history", "find out", "look up", "timeline", "investigate",
		},
		credentials: []string{"WEB_SEARCH_KEY"},
	},
	{
		class: ClassCompute,
		keywords: []string{
			"calculate", "compute", "fibonacci", "factorial", "prime", "sum",
			"multiply", "divide", "average", "math",
		},
	},
	{
		class: ClassData,
		keywords: []string{
			"fetch data", "parse json", "parse csv", "transform data", "api call",
		},
	},
	{
		class: ClassCode,
		keywords: []string{
			"write code", "generate code", "create script", "implement",
		},
	},
	{
		class: ClassSynthesis,
		keywords: []string{
			"write a poem", "creative writing", "compose", "imagine",
		},
		credentials: []string{"LLM_API_KEY"},
	},
}

// Classify matches refinedTask against the priority-ordered keyword
// groups and returns the first hit. If nothing matches, a question
// word routes to research (information-seeking default); otherwise
// synthesis (open-ended creative default).
func Classify(refinedTask string) Result {
	lower := strings.ToLower(refinedTask)

	for _, g := range groups {
		for _, kw := range g.keywords {
			if strings.Contains(lower, kw) {
				return Result{
					Class:               g.class,
					RequiredCredentials: g.credentials,
					Reason:              "matched keyword group " + string(g.class) + " on \"" + kw + "\"",
				}
			}
		}
	}

	for _, qw := range questionWords {
		if containsWord(lower, qw) {
			return Result{
				Class:               ClassResearch,
				RequiredCredentials: []string{"WEB_SEARCH_KEY"},
				Reason:              "no keyword group matched; defaulted to research on question word \"" + qw + "\"",
			}
		}
	}

	return Result{
		Class:               ClassSynthesis,
		RequiredCredentials: []string{"LLM_API_KEY"},
		Reason:              "no keyword group or question word matched; defaulted to synthesis",
	}
}

func containsWord(text, word string) bool {
	for _, field := range strings.Fields(text) {
		if strings.Trim(field, ".,!?;:\"'") == word {
			return true
		}
	}
	return false
}
