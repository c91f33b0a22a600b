package memory

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/HELIXFACTORY/internal/metrics"
)

// Manager is the single façade the orchestrator talks to: start_task,
// complete_task, recall, context_for_subagent, lifecycle_pass, cleanup.
// Memory is bound only to the main orchestrator process — sub-agents
// are stateless and receive a ContextSlice injected at spawn time.
type Manager struct {
	Working  *WorkingMemory
	Episodic *EpisodicStore
	Semantic *SemanticStore
	Embedder EmbeddingProvider

	lifecycle *LifecycleController
	slicer    *Slicer
	cleaner   *Cleaner

	classLocksMu sync.Mutex
	classLocks   map[string]*sync.Mutex
}

// Config bundles the paths/knobs Manager needs to open its backing stores.
type Config struct {
	DBDir                string
	KeychainService      string
	KeyEnv               string
	PassiveBufferMinutes int
	RetentionDays        int
	LifecycleIntervalMin int
	Embedder             EmbeddingProvider
}

// NewManager opens the episodic/semantic stores and wires the working
// tier, lifecycle controller, slicer, and cleaner around them.
func NewManager(cfg Config) (*Manager, error) {
	embedder := cfg.Embedder
	if embedder == nil {
		embedder = NewHashEmbedding()
	}

	episodic, err := NewEpisodicStore(cfg.DBDir, cfg.KeychainService, cfg.KeyEnv, embedder)
	if err != nil {
		return nil, fmt.Errorf("failed to open episodic store: %w", err)
	}

	semantic, err := NewSemanticStore(cfg.DBDir, cfg.KeychainService, cfg.KeyEnv)
	if err != nil {
		episodic.Close()
		return nil, fmt.Errorf("failed to open semantic store: %w", err)
	}

	working := NewWorkingMemory(cfg.PassiveBufferMinutes)
	lifecycle := NewLifecycleController(episodic, semantic, embedder, cfg.LifecycleIntervalMin)

	log.Printf("[MEMORY] episodic key source=%s semantic key source=%s", episodic.KeySource(), semantic.KeySource())

	return &Manager{
		Working:    working,
		Episodic:   episodic,
		Semantic:   semantic,
		Embedder:   embedder,
		lifecycle:  lifecycle,
		slicer:     NewSlicer(episodic, semantic, embedder, working),
		cleaner:    NewCleaner(lifecycle, episodic, semantic, cfg.RetentionDays),
		classLocks: make(map[string]*sync.Mutex),
	}, nil
}

// lockForClass returns the mutex serializing semantic aggregate updates
// for one class, creating it on first use. The running mean and totals
// in UpdateFromExecution are a read-modify-write over the row; without
// per-class serialization, two concurrently completing tasks of the
// same class can race and drop an update.
func (m *Manager) lockForClass(class string) *sync.Mutex {
	m.classLocksMu.Lock()
	defer m.classLocksMu.Unlock()
	l, ok := m.classLocks[class]
	if !ok {
		l = &sync.Mutex{}
		m.classLocks[class] = l
	}
	return l
}

// Close seals both on-disk stores.
func (m *Manager) Close() error {
	if err := m.Episodic.Close(); err != nil {
		return err
	}
	return m.Semantic.Close()
}

// StartTask begins a new current task, forcibly partial-completing and
// promoting to episodic whatever task was previously in flight.
func (m *Manager) StartTask(rawTask string) *TaskRecord {
	evicted := m.Working.StartTask(rawTask)
	if evicted != nil {
		if err := m.Episodic.Store(evicted); err != nil {
			log.Printf("[MEMORY] failed to store superseded task %s: %v", evicted.ID, err)
		}
	}
	return m.Working.Current()
}

// CompleteTask finalizes the current task: stores it to episodic
// memory and updates the class's semantic aggregate.
func (m *Manager) CompleteTask(outcome Outcome, summary, errorText, reference string, durationMS int64, tools []string) (*TaskRecord, error) {
	rec := m.Working.Current()
	if rec == nil {
		return nil, fmt.Errorf("no current task to complete")
	}

	rec.Outcome = outcome
	rec.Summary = truncate(summary, 500)
	rec.ErrorText = errorText
	rec.Reference = reference
	rec.DurationMS = durationMS
	rec.Tools = tools
	rec.Tier = TierEpisodic

	if err := m.Episodic.Store(rec); err != nil {
		return nil, fmt.Errorf("failed to store completed task: %w", err)
	}

	if rec.Class != "" {
		lock := m.lockForClass(rec.Class)
		lock.Lock()
		err := m.Semantic.UpdateFromExecution(rec.Class, rec.RefinedTask, outcome == OutcomeSuccess, durationMS, tools)
		lock.Unlock()
		if err != nil {
			log.Printf("[MEMORY] failed to update semantic aggregate for %s: %v", rec.Class, err)
		}
	}

	m.Working.ClearCurrent()
	return rec, nil
}

// Recall is the façade's similarity query: it returns the k episodic
// entries most similar to query by embedding, across all classes and
// outcomes. Lookup by id is RecallByID on the episodic store.
func (m *Manager) Recall(query string, k int) ([]*TaskRecord, error) {
	if m.Embedder == nil {
		return nil, fmt.Errorf("no embedding provider available")
	}
	vec, err := m.Embedder.Embed(query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed recall query: %w", err)
	}
	return m.Episodic.RecallSimilar(vec, k, false, "")
}

// RecallByID fetches one episodic entry by id.
func (m *Manager) RecallByID(id string) (*TaskRecord, error) {
	return m.Episodic.RecallByID(id)
}

// ContextForSubagent returns the slice the build pipeline injects into
// a generation prompt.
func (m *Manager) ContextForSubagent(taskText, class string) (ContextSlice, error) {
	return m.slicer.SliceForTask(taskText, class)
}

// FormatContextForPrompt renders a ContextSlice for prompt injection.
func (m *Manager) FormatContextForPrompt(slice ContextSlice) string {
	return slice.Render()
}

// ContextForSubagentPrompt slices and renders in one call — the shape
// the build pipeline's generator consumes, so it depends only on a
// small interface rather than the full memory package.
func (m *Manager) ContextForSubagentPrompt(taskText, class string) (string, error) {
	slice, err := m.ContextForSubagent(taskText, class)
	if err != nil {
		return "", err
	}
	return m.FormatContextForPrompt(slice), nil
}

// RunLifecycle triggers an out-of-band lifecycle pass regardless of
// the interval, for the `lifecycle` CLI subcommand.
func (m *Manager) RunLifecycle() (LifecycleStats, error) {
	var currentEmbedding []float32
	if cur := m.Working.Current(); cur != nil && m.Embedder != nil {
		if vec, err := m.Embedder.Embed(cur.RefinedTask); err == nil {
			currentEmbedding = vec
		}
	}
	return m.lifecycle.Run(currentEmbedding)
}

// MaybeRunLifecycle runs a lifecycle pass only if the configured
// interval has elapsed, per the orchestrator's opportunistic trigger.
func (m *Manager) MaybeRunLifecycle() {
	if !m.lifecycle.ShouldRun() {
		return
	}
	stats, err := m.RunLifecycle()
	if err != nil {
		metrics.LifecyclePassesTotal.WithLabelValues("interval", "failed").Inc()
		log.Printf("[LIFECYCLE] pass failed: %v", err)
		return
	}
	metrics.LifecyclePassesTotal.WithLabelValues("interval", "ok").Inc()
	log.Printf("[LIFECYCLE] evaluated=%d promoted=%d demoted=%d archived=%d deleted=%d",
		stats.Evaluated, stats.Promoted, stats.Demoted, stats.Archived, stats.Deleted)
}

// RunCleanup triggers the 30-day retention sweep.
func (m *Manager) RunCleanup(ctx context.Context) (CleanupStats, error) {
	return m.cleaner.RunFull(ctx)
}

// Consolidate completes any pending task as "partial" (session ended)
// and runs a final lifecycle pass, for graceful shutdown.
func (m *Manager) Consolidate() {
	if m.Working.Current() != nil {
		if _, err := m.CompleteTask(OutcomePartial, "session ended", "", "", 0, nil); err != nil {
			log.Printf("[MEMORY] failed to consolidate pending task: %v", err)
		}
	}
	if _, err := m.RunLifecycle(); err != nil {
		log.Printf("[MEMORY] failed to run final lifecycle pass: %v", err)
	}
}

// AddPassiveTranscription records a passive buffer entry (e.g. ambient
// conversation context collected outside the task flow).
func (m *Manager) AddPassiveTranscription(text string) {
	m.Working.AddPassive(text)
}

// GetPassiveBuffer returns the live passive buffer.
func (m *Manager) GetPassiveBuffer() []PassiveEntry {
	return m.Working.PassiveBuffer()
}

// Stats is a dashboard-facing snapshot of memory state.
type Stats struct {
	SessionID      string
	HasCurrentTask bool
	PassiveEntries int
	KeySource      string
	CheckedAt      time.Time
}

// GetStats returns a lightweight snapshot for the dashboard/CLI.
func (m *Manager) GetStats() Stats {
	return Stats{
		SessionID:      m.Working.SessionID(),
		HasCurrentTask: m.Working.Current() != nil,
		PassiveEntries: len(m.Working.PassiveBuffer()),
		KeySource:      m.Episodic.KeySource(),
		CheckedAt:      time.Now(),
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
