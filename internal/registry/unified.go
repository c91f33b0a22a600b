package registry

import (
	"fmt"
	"time"
)

// Runtime identifies which backend produced a result.
type Runtime string

const (
	RuntimeContainer Runtime = "container"
	RuntimeWASM      Runtime = "wasm"
)

// Result is one candidate surfaced by the unified search, resolved to
// the runtime that will actually execute it.
type Result struct {
	Runtime     Runtime
	Name        string
	Class       string
	Score       float64
	ArtifactRef string
}

// Unified fans a search out to both backends and arbitrates between
// them when both produce a match for the same logical agent.
type Unified struct {
	container      *ContainerBackend
	wasmBackend    *WASMBackend
	containerNames func() ([]NameTag, error)
	defaultTag     string
	tieBreakMargin float64
}

// NewUnified wires both backends together. containerNames supplies
// the list of published container images to search (the registry's
// catalog API is not modeled here; callers provide the name/tag pairs,
// e.g. from a periodic catalog sync).
func NewUnified(container *ContainerBackend, wasmBackend *WASMBackend, containerNames func() ([]NameTag, error), defaultTag string, tieBreakMargin float64) *Unified {
	return &Unified{
		container:      container,
		wasmBackend:    wasmBackend,
		containerNames: containerNames,
		defaultTag:     defaultTag,
		tieBreakMargin: tieBreakMargin,
	}
}

// Search runs the shared scoring recipe against both backends'
// candidates and returns one arbitrated result per agent name that
// matched in either backend, highest score first.
func (u *Unified) Search(query, class string) ([]Result, error) {
	wasmCandidates, err := u.wasmBackend.Candidates()
	if err != nil {
		return nil, fmt.Errorf("failed to list wasm candidates: %w", err)
	}
	wasmMatches := Search(query, wasmCandidates)

	var containerMatches []Match
	if u.container != nil && u.containerNames != nil {
		names, err := u.containerNames()
		if err != nil {
			return nil, fmt.Errorf("failed to list container candidates: %w", err)
		}
		containerMatches = Search(query, u.container.Candidates(names))
	}

	byName := map[string]struct {
		wasm      *Match
		container *Match
	}{}
	for i := range wasmMatches {
		entry := byName[wasmMatches[i].Candidate.Name]
		entry.wasm = &wasmMatches[i]
		byName[wasmMatches[i].Candidate.Name] = entry
	}
	for i := range containerMatches {
		entry := byName[containerMatches[i].Candidate.Name]
		entry.container = &containerMatches[i]
		byName[containerMatches[i].Candidate.Name] = entry
	}

	var results []Result
	for name, entry := range byName {
		results = append(results, u.pickBest(name, entry.wasm, entry.container))
	}

	for i := 1; i < len(results); i++ {
		j := i
		for j > 0 && results[j-1].Score < results[j].Score {
			results[j-1], results[j] = results[j], results[j-1]
			j--
		}
	}
	return results, nil
}

// pickBest arbitrates between a WASM match and a container match for
// the same agent name. When only one backend matched, that one wins
// outright. When both matched and their scores differ by more than
// tieBreakMargin, the higher score wins. Otherwise it's effectively a
// tie, and WASM wins for its lower cold-start cost.
func (u *Unified) pickBest(name string, wasmMatch, containerMatch *Match) Result {
	if wasmMatch == nil {
		return u.containerResult(name, *containerMatch)
	}
	if containerMatch == nil {
		return u.wasmResult(name, *wasmMatch)
	}

	delta := wasmMatch.Score - containerMatch.Score
	if delta < 0 {
		delta = -delta
	}
	if delta > u.tieBreakMargin {
		if wasmMatch.Score > containerMatch.Score {
			return u.wasmResult(name, *wasmMatch)
		}
		return u.containerResult(name, *containerMatch)
	}
	return u.wasmResult(name, *wasmMatch)
}

func (u *Unified) wasmResult(name string, m Match) Result {
	return Result{
		Runtime:     RuntimeWASM,
		Name:        name,
		Class:       m.Candidate.Class,
		Score:       m.Score,
		ArtifactRef: u.wasmBackend.ArtifactRef(name),
	}
}

func (u *Unified) containerResult(name string, m Match) Result {
	return Result{
		Runtime:     RuntimeContainer,
		Name:        name,
		Class:       m.Candidate.Class,
		Score:       m.Score,
		ArtifactRef: u.container.ArtifactRef(name, u.defaultTag),
	}
}

// CacheTTLDefault is the recommended manifest-cache lifetime for a
// ContainerBackend backing this unified registry.
const CacheTTLDefault = 60 * time.Second
