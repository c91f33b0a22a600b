package registry

import "strings"

// matchThreshold is the minimum score a candidate needs to be
// considered a match by either backend.
const matchThreshold = 0.2

// classKeywords are the fixed domain words that earn a candidate a
// class-match bonus whenever one of them appears in both the query
// and the candidate's name.
var classKeywords = []string{"research", "compute", "data", "code", "synthesis", "math", "text"}

// Candidate is whatever a backend's list of entries exposes for
// search: a name (checked for the class-keyword and helix- prefix
// bonuses) and the stored task/description text the Jaccard score is
// computed against.
type Candidate struct {
	Name        string
	Class       string
	Description string
	Tools       []string
}

// Match pairs a candidate with the score it earned.
type Match struct {
	Candidate Candidate
	Score     float64
}

// score computes the shared stemmed-Jaccard-plus-bonuses recipe used
// by both the container and WASM backends: a stemmed keyword overlap
// between the query and the candidate's stored task/description text,
// with a +0.3 bonus the first time a fixed domain keyword appears in
// both the query and the candidate's name, and a +0.5 bonus for
// helix-prefixed names (first-party agents are preferred when
// otherwise tied).
func score(query string, c Candidate) float64 {
	queryKeywords := stemmedKeywords(query)
	candKeywords := stemmedKeywords(c.Description)

	s := jaccard(queryKeywords, candKeywords)

	lowerQuery := strings.ToLower(query)
	lowerName := strings.ToLower(c.Name)
	for _, kw := range classKeywords {
		if strings.Contains(lowerQuery, kw) && strings.Contains(lowerName, kw) {
			s += 0.3
			break
		}
	}

	if strings.HasPrefix(lowerName, "helix-") {
		s += 0.5
	}

	return s
}

// Search scores every candidate against query and returns the ones
// clearing matchThreshold, ranked highest score first.
func Search(query string, candidates []Candidate) []Match {
	var matches []Match
	for _, c := range candidates {
		if s := score(query, c); s >= matchThreshold {
			matches = append(matches, Match{Candidate: c, Score: s})
		}
	}
	// Manual insertion sort, descending by score: matches the small-N
	// manual ranking style used throughout the memory package rather
	// than reaching for sort.Slice.
	for i := 1; i < len(matches); i++ {
		j := i
		for j > 0 && matches[j-1].Score < matches[j].Score {
			matches[j-1], matches[j] = matches[j], matches[j-1]
			j--
		}
	}
	return matches
}
