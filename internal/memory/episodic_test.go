package memory

import (
	"testing"
	"time"
)

func setupTestEpisodic(t *testing.T) (*EpisodicStore, func()) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewEpisodicStore(dir, "", "HELIX_TEST_KEY_UNSET", NewHashEmbedding())
	if err != nil {
		t.Fatalf("NewEpisodicStore failed: %v", err)
	}
	return store, func() { store.Close() }
}

func TestStoreAndRecallByID(t *testing.T) {
	store, cleanup := setupTestEpisodic(t)
	defer cleanup()

	rec := &TaskRecord{
		RawTask:     "calculate the 10th fibonacci number",
		RefinedTask: "calculate the 10th fibonacci number",
		Class:       "compute",
		Outcome:     OutcomeSuccess,
		DurationMS:  120,
		Summary:     "returned 55",
		Tools:       []string{"python"},
	}

	if err := store.Store(rec); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, err := store.RecallByID(rec.ID)
	if err != nil {
		t.Fatalf("RecallByID failed: %v", err)
	}
	if got.RawTask != rec.RawTask || got.Class != rec.Class || got.Outcome != rec.Outcome {
		t.Errorf("round-trip mismatch: got %+v, want %+v", got, rec)
	}
	if len(got.Embedding) == 0 {
		t.Error("expected embedding to be populated by Store")
	}
	if got.AccessCount != 1 {
		t.Errorf("expected access count 1 after RecallByID, got %d", got.AccessCount)
	}
}

func TestRecallSimilarRanksByCosine(t *testing.T) {
	store, cleanup := setupTestEpisodic(t)
	defer cleanup()

	tasks := []string{
		"calculate the 10th fibonacci number",
		"write a poem about rain",
		"research the history of the internet",
	}
	for _, text := range tasks {
		rec := &TaskRecord{RawTask: text, RefinedTask: text, Class: "x", Outcome: OutcomeSuccess}
		if err := store.Store(rec); err != nil {
			t.Fatalf("Store failed: %v", err)
		}
	}

	embedder := NewHashEmbedding()
	query, _ := embedder.Embed("calculate the 11th fibonacci number")

	results, err := store.RecallSimilar(query, 1, true, "")
	if err != nil {
		t.Fatalf("RecallSimilar failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].RawTask != tasks[0] {
		t.Errorf("expected the fibonacci task to rank first, got %q", results[0].RawTask)
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	store, cleanup := setupTestEpisodic(t)
	defer cleanup()

	rec := &TaskRecord{
		ID:          "archive-me",
		RawTask:     "raw text",
		RefinedTask: "refined text",
		Class:       "research",
		Outcome:     OutcomeFailure,
		Summary:     "did not work",
		LastAccessed: time.Now(),
	}
	if err := store.Store(rec); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	lifecycle := NewLifecycleController(store, nil, NewHashEmbedding(), 5)
	if err := lifecycle.archiveEntry(rec); err != nil {
		t.Fatalf("archiveEntry failed: %v", err)
	}

	if _, err := store.RecallByID(rec.ID); err == nil {
		t.Error("expected archived entry to be removed from the live table")
	}

	blob, err := store.ArchivedSnapshot(rec.ID)
	if err != nil {
		t.Fatalf("ArchivedSnapshot failed: %v", err)
	}

	raw, refined, class, outcome, summary, err := DecompressSnapshot(blob)
	if err != nil {
		t.Fatalf("DecompressSnapshot failed: %v", err)
	}
	if raw != rec.RawTask || refined != rec.RefinedTask || class != rec.Class ||
		outcome != string(rec.Outcome) || summary != rec.Summary {
		t.Errorf("archive round-trip mismatch: got (%s,%s,%s,%s,%s)", raw, refined, class, outcome, summary)
	}
}
