package registry

import "testing"

func TestPickBestPrefersWASMWithinTieMargin(t *testing.T) {
	u := &Unified{tieBreakMargin: 0.1}
	wasmMatch := Match{Candidate: Candidate{Name: "agent-a"}, Score: 0.55}
	containerMatch := Match{Candidate: Candidate{Name: "agent-a"}, Score: 0.5}

	wasmBackend, err := NewWASMBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewWASMBackend failed: %v", err)
	}
	u.wasmBackend = wasmBackend
	u.container = NewContainerBackend("registry.local", CacheTTLDefault)

	result := u.pickBest("agent-a", &wasmMatch, &containerMatch)
	if result.Runtime != RuntimeWASM {
		t.Errorf("expected wasm to win within tie-break margin, got %s", result.Runtime)
	}
}

func TestPickBestPicksClearWinnerOutsideMargin(t *testing.T) {
	u := &Unified{tieBreakMargin: 0.1}
	wasmMatch := Match{Candidate: Candidate{Name: "agent-a"}, Score: 0.3}
	containerMatch := Match{Candidate: Candidate{Name: "agent-a"}, Score: 0.9}

	wasmBackend, err := NewWASMBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewWASMBackend failed: %v", err)
	}
	u.wasmBackend = wasmBackend
	u.container = NewContainerBackend("registry.local", CacheTTLDefault)

	result := u.pickBest("agent-a", &wasmMatch, &containerMatch)
	if result.Runtime != RuntimeContainer {
		t.Errorf("expected container to win when clearly higher scoring, got %s", result.Runtime)
	}
}

func TestPickBestOnlyOneBackendMatched(t *testing.T) {
	u := &Unified{tieBreakMargin: 0.1}
	wasmBackend, err := NewWASMBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewWASMBackend failed: %v", err)
	}
	u.wasmBackend = wasmBackend

	wasmMatch := Match{Candidate: Candidate{Name: "agent-a"}, Score: 0.4}
	result := u.pickBest("agent-a", &wasmMatch, nil)
	if result.Runtime != RuntimeWASM {
		t.Errorf("expected wasm to win when container has no match, got %s", result.Runtime)
	}
}

func TestUnifiedSearchWasmOnlyEndToEnd(t *testing.T) {
	wasmBackend, err := NewWASMBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewWASMBackend failed: %v", err)
	}
	if err := wasmBackend.Store(WASMManifest{
		Name: "fib-agent",
		Task: "calculate fibonacci numbers quickly",
	}, validWasmBinary()); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	u := NewUnified(nil, wasmBackend, nil, "latest", 0.1)
	results, err := u.Search("calculate fibonacci numbers", "compute")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Runtime != RuntimeWASM {
		t.Errorf("expected a single wasm hit, got %+v", results)
	}
}
