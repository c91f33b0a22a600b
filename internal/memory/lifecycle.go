package memory

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sync"
	"time"
)

// tier thresholds, scored in [0,1]: working ≥0.7, episodic ≥0.4, semantic ≥0.2, else archive.
const (
	thresholdWorking  = 0.7
	thresholdEpisodic = 0.4
	thresholdSemantic = 0.2
)

// LifecycleController periodically re-scores episodic entries and
// moves them toward the tier their score implies, distilling
// successful patterns into semantic aggregates and archiving cold or
// failed ones. It never runs concurrently with itself.
type LifecycleController struct {
	mu sync.Mutex

	episodic *EpisodicStore
	semantic *SemanticStore
	embedder EmbeddingProvider

	interval time.Duration
	lastRun  time.Time
}

// NewLifecycleController wires the controller to the episodic/semantic
// stores it scores and transitions.
func NewLifecycleController(episodic *EpisodicStore, semantic *SemanticStore, embedder EmbeddingProvider, intervalMinutes int) *LifecycleController {
	if intervalMinutes <= 0 {
		intervalMinutes = 5
	}
	return &LifecycleController{
		episodic: episodic,
		semantic: semantic,
		embedder: embedder,
		interval: time.Duration(intervalMinutes) * time.Minute,
	}
}

// LifecycleStats reports counters from one lifecycle pass.
type LifecycleStats struct {
	Evaluated int
	Promoted  int
	Demoted   int
	Archived  int
	Deleted   int
}

// ShouldRun reports whether at least `interval` has elapsed since the
// last pass.
func (l *LifecycleController) ShouldRun() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Since(l.lastRun) >= l.interval
}

// calculateScore implements the weighted lifecycle formula:
// score = 0.3·recency + 0.2·frequency + 0.3·relevance + 0.2·outcome.
func (l *LifecycleController) calculateScore(rec *TaskRecord, currentTaskEmbedding []float32) float64 {
	daysSinceAccess := time.Since(rec.LastAccessed).Hours() / 24
	recency := math.Exp(-daysSinceAccess / 7)
	frequency := math.Min(float64(rec.AccessCount)/10, 1)

	relevance := 0.5
	if len(currentTaskEmbedding) > 0 && len(rec.Embedding) > 0 {
		relevance = cosineSimilarity(rec.Embedding, currentTaskEmbedding)
	}

	var outcome float64
	switch rec.Outcome {
	case OutcomeSuccess:
		outcome = 1.0
	case OutcomePartial:
		outcome = 0.5
	default:
		outcome = 0.0
	}

	return 0.3*recency + 0.2*frequency + 0.3*relevance + 0.2*outcome
}

// calculateSemanticScore applies the same weighted formula to a
// semantic row, using its own access recency/frequency and its
// success rate in place of a per-entry outcome.
func (l *LifecycleController) calculateSemanticScore(agentCap *AgentCapability, currentTaskEmbedding []float32) float64 {
	daysSinceAccess := time.Since(agentCap.LastAccessed).Hours() / 24
	recency := math.Exp(-daysSinceAccess / 7)
	frequency := math.Min(float64(agentCap.AccessCount)/10, 1)

	relevance := 0.5
	if len(currentTaskEmbedding) > 0 && len(agentCap.Embedding) > 0 {
		relevance = cosineSimilarity(agentCap.Embedding, currentTaskEmbedding)
	}

	return 0.3*recency + 0.2*frequency + 0.3*relevance + 0.2*agentCap.SuccessRate()
}

func scoreToTier(score float64) Tier {
	switch {
	case score >= thresholdWorking:
		return TierWorking
	case score >= thresholdEpisodic:
		return TierEpisodic
	case score >= thresholdSemantic:
		return TierSemantic
	default:
		return TierArchive
	}
}

// Run scores every episodic entry and transitions it toward its
// implied tier. currentTaskEmbedding may be nil (relevance defaults to
// neutral 0.5 when there is no in-flight task to compare against).
func (l *LifecycleController) Run(currentTaskEmbedding []float32) (LifecycleStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var stats LifecycleStats

	entries, err := l.episodic.AllForLifecycle()
	if err != nil {
		return stats, fmt.Errorf("failed to list episodic entries for lifecycle pass: %w", err)
	}

	for _, rec := range entries {
		stats.Evaluated++
		score := l.calculateScore(rec, currentTaskEmbedding)
		target := scoreToTier(score)

		switch {
		case target == TierWorking || target == TierEpisodic:
			if rec.Tier != target {
				if err := l.episodic.setTier(rec.ID, target); err != nil {
					log.Printf("[LIFECYCLE] failed to re-tier %s: %v", rec.ID, err)
					continue
				}
				stats.Demoted++ // relative to the common case of decaying toward cold
			}
		case target == TierSemantic:
			if rec.Outcome == OutcomeSuccess {
				if err := l.distillToPattern(rec); err != nil {
					log.Printf("[LIFECYCLE] failed to distill %s: %v", rec.ID, err)
					continue
				}
				stats.Promoted++
			}
			if err := l.archiveEntry(rec); err != nil {
				log.Printf("[LIFECYCLE] failed to archive %s after distillation: %v", rec.ID, err)
				continue
			}
			stats.Archived++
		default: // archive
			if err := l.archiveEntry(rec); err != nil {
				log.Printf("[LIFECYCLE] failed to archive %s: %v", rec.ID, err)
				continue
			}
			stats.Archived++
		}
	}

	semanticRows, err := l.semantic.All()
	if err != nil {
		return stats, fmt.Errorf("failed to list semantic rows for lifecycle pass: %w", err)
	}
	for _, agentCap := range semanticRows {
		stats.Evaluated++
		score := l.calculateSemanticScore(agentCap, currentTaskEmbedding)
		if score < thresholdSemantic {
			if agentCap.SuccessRate() < 0.5 {
				if err := l.semantic.Delete(agentCap.Class); err != nil {
					log.Printf("[LIFECYCLE] failed to delete stale semantic row %s: %v", agentCap.Class, err)
					continue
				}
				stats.Deleted++
			} else {
				// Decent success rate survives the sweep uncompressed —
				// the original has no semantic archive table either.
				stats.Archived++
			}
		}
	}

	l.lastRun = time.Now()
	return stats, nil
}

// distillToPattern merges a successful episodic entry into its
// class's semantic aggregate.
func (l *LifecycleController) distillToPattern(rec *TaskRecord) error {
	return l.semantic.UpdateFromExecution(rec.Class, rec.RefinedTask, true, rec.DurationMS, rec.Tools)
}

type archiveSnapshot struct {
	Raw     string `json:"raw"`
	Refined string `json:"refined"`
	Class   string `json:"class"`
	Outcome string `json:"outcome"`
	Summary string `json:"summary"`
}

// archiveEntry gzips a {raw, refined, class, outcome, summary}
// snapshot into the archive table and removes the live row.
func (l *LifecycleController) archiveEntry(rec *TaskRecord) error {
	snap := archiveSnapshot{
		Raw:     rec.RawTask,
		Refined: rec.RefinedTask,
		Class:   rec.Class,
		Outcome: string(rec.Outcome),
		Summary: rec.Summary,
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal archive snapshot: %w", err)
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		gw.Close()
		return fmt.Errorf("failed to compress archive snapshot: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive snapshot: %w", err)
	}

	return l.episodic.archive(rec, buf.Bytes())
}

// DecompressSnapshot is the inverse of archiveEntry's compression,
// used by cleanup/tests to verify the archive round-trip.
func DecompressSnapshot(blob []byte) (raw, refined, class, outcome, summary string, err error) {
	gr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return "", "", "", "", "", fmt.Errorf("failed to open gzip reader: %w", err)
	}
	defer gr.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(gr); err != nil {
		return "", "", "", "", "", fmt.Errorf("failed to decompress snapshot: %w", err)
	}

	var snap archiveSnapshot
	if err := json.Unmarshal(buf.Bytes(), &snap); err != nil {
		return "", "", "", "", "", fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap.Raw, snap.Refined, snap.Class, snap.Outcome, snap.Summary, nil
}
