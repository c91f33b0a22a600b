package memory

import (
	"testing"
	"time"
)

func TestLifecycleDemotesColdFailedEntry(t *testing.T) {
	dir := t.TempDir()
	embedder := NewHashEmbedding()

	episodic, err := NewEpisodicStore(dir, "", "HELIX_TEST_KEY_UNSET", embedder)
	if err != nil {
		t.Fatalf("NewEpisodicStore failed: %v", err)
	}
	defer episodic.Close()

	semantic, err := NewSemanticStore(dir, "", "HELIX_TEST_KEY_UNSET")
	if err != nil {
		t.Fatalf("NewSemanticStore failed: %v", err)
	}
	defer semantic.Close()

	cold := &TaskRecord{
		RawTask:     "an old failed task",
		RefinedTask: "an old failed task",
		Class:       "research",
		Outcome:     OutcomeFailure,
	}
	if err := episodic.Store(cold); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	// Backdate last_accessed to 60 days ago with a single access, as scenario 5 specifies.
	if _, err := episodic.store.DB.Exec(`UPDATE episodic_memories SET last_accessed = ?, access_count = 1 WHERE id = ?`,
		time.Now().AddDate(0, 0, -60), cold.ID); err != nil {
		t.Fatalf("failed to backdate entry: %v", err)
	}

	lifecycle := NewLifecycleController(episodic, semantic, embedder, 5)
	stats, err := lifecycle.Run(nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Archived == 0 {
		t.Errorf("expected the cold failed entry to be archived, stats=%+v", stats)
	}
	if _, err := episodic.RecallByID(cold.ID); err == nil {
		t.Error("expected the archived entry to be removed from the live table")
	}
}

func TestLifecycleDistillsAgedSuccessfulEntry(t *testing.T) {
	dir := t.TempDir()
	embedder := NewHashEmbedding()

	episodic, err := NewEpisodicStore(dir, "", "HELIX_TEST_KEY_UNSET", embedder)
	if err != nil {
		t.Fatalf("NewEpisodicStore failed: %v", err)
	}
	defer episodic.Close()

	semantic, err := NewSemanticStore(dir, "", "HELIX_TEST_KEY_UNSET")
	if err != nil {
		t.Fatalf("NewSemanticStore failed: %v", err)
	}
	defer semantic.Close()

	hot := &TaskRecord{
		RawTask:     "a frequently used successful task",
		RefinedTask: "a frequently used successful task",
		Class:       "compute",
		Outcome:     OutcomeSuccess,
		DurationMS:  50,
	}
	if err := episodic.Store(hot); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	// Successful but aged enough that its score lands in the
	// distill-to-semantic band [0.2, 0.4) rather than staying episodic.
	if _, err := episodic.store.DB.Exec(`UPDATE episodic_memories SET last_accessed = ?, access_count = 1 WHERE id = ?`,
		time.Now().AddDate(0, 0, -30), hot.ID); err != nil {
		t.Fatalf("failed to set access metadata: %v", err)
	}

	before, err := semantic.Get("compute")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if before != nil {
		t.Fatalf("expected no prior semantic row for compute")
	}

	lifecycle := NewLifecycleController(episodic, semantic, embedder, 5)
	if _, err := lifecycle.Run(nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	after, err := semantic.Get("compute")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if after == nil || after.TotalRuns == 0 {
		t.Errorf("expected distillation to increment the compute semantic row, got %+v", after)
	}
}
