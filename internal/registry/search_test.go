package registry

import "testing"

func TestSearchFiltersBelowThreshold(t *testing.T) {
	candidates := []Candidate{
		{Name: "unrelated-agent", Description: "writes poetry about rain"},
	}
	matches := Search("calculate fibonacci numbers", candidates)
	if len(matches) != 0 {
		t.Errorf("expected no matches above threshold, got %+v", matches)
	}
}

func TestSearchClassBonusRequiresBothSides(t *testing.T) {
	// The bonus fires only when a domain keyword shows up in both the
	// query and the candidate's name, not just its description.
	withBonus := score("compute the sum", Candidate{Name: "compute-agent", Description: "adds two numbers together"})
	withoutBonus := score("compute the sum", Candidate{Name: "math-agent", Description: "adds two numbers together"})
	if withBonus <= withoutBonus {
		t.Errorf("expected class-keyword-in-name bonus to raise the score: with=%f without=%f", withBonus, withoutBonus)
	}
}

func TestSearchHelixPrefixBonus(t *testing.T) {
	prefixed := score("summarize text", Candidate{Name: "helix-summarizer", Description: "summarize text documents"})
	plain := score("summarize text", Candidate{Name: "summarizer", Description: "summarize text documents"})
	if prefixed-plain < 0.4 {
		t.Errorf("expected helix- prefix to add roughly 0.5, got delta=%f", prefixed-plain)
	}
}

func TestSearchRanksDescending(t *testing.T) {
	candidates := []Candidate{
		{Name: "weak-match", Description: "fibonacci"},
		{Name: "strong-match", Description: "calculate fibonacci numbers quickly"},
	}
	matches := Search("calculate fibonacci numbers", candidates)
	if len(matches) < 2 {
		t.Fatalf("expected at least 2 matches, got %d", len(matches))
	}
	if matches[0].Score < matches[1].Score {
		t.Errorf("expected descending order, got %+v", matches)
	}
}
