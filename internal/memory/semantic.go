package memory

import (
	_ "embed"
	"database/sql"
	"fmt"
	"time"
)

//go:embed schema_semantic.sql
var schemaSemantic string

// SemanticStore holds one aggregate row per agent class.
type SemanticStore struct {
	store *SealedStore
}

// NewSemanticStore opens (or creates) the semantic tier at dbDir/semantic.db[.enc].
func NewSemanticStore(dbDir, keychainService, keyEnv string) (*SemanticStore, error) {
	store, err := OpenSealed(dbDir, "semantic", keychainService, keyEnv, schemaSemantic)
	if err != nil {
		return nil, err
	}
	return &SemanticStore{store: store}, nil
}

func (s *SemanticStore) KeySource() string { return s.store.KeySource() }
func (s *SemanticStore) Close() error      { return s.store.Close() }

func (s *SemanticStore) scanRow(row interface {
	Scan(dest ...any) error
}) (*AgentCapability, error) {
	var agentCap AgentCapability
	var createdAt time.Time
	var commonTools, taskPatterns string
	var embBlob []byte
	if err := row.Scan(&agentCap.Class, &createdAt, &agentCap.LastAccessed, &agentCap.AccessCount,
		&agentCap.TotalRuns, &agentCap.SuccessfulRuns,
		&agentCap.AvgDurationMS, &commonTools, &taskPatterns, &embBlob); err != nil {
		return nil, err
	}
	agentCap.Tools = decodeStrings(commonTools)
	agentCap.TaskPatterns = decodeStrings(taskPatterns)
	agentCap.Embedding = decodeEmbedding(embBlob)
	return &agentCap, nil
}

const semanticColumns = `class, created_at, last_accessed, access_count, total_runs, successful_runs,
	avg_duration_ms, common_tools, task_patterns, embedding`

// Get fetches the capability row for class, or nil if none exists yet.
func (s *SemanticStore) Get(class string) (*AgentCapability, error) {
	row := s.store.DB.QueryRow(`SELECT `+semanticColumns+` FROM semantic_memories WHERE class = ?`, class)
	agentCap, err := s.scanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get semantic row for %s: %w", class, err)
	}
	return agentCap, nil
}

// All returns every semantic row, for the lifecycle pass.
func (s *SemanticStore) All() ([]*AgentCapability, error) {
	rows, err := s.store.DB.Query(`SELECT ` + semanticColumns + ` FROM semantic_memories`)
	if err != nil {
		return nil, fmt.Errorf("failed to list semantic rows: %w", err)
	}
	defer rows.Close()

	var out []*AgentCapability
	for rows.Next() {
		agentCap, err := s.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, agentCap)
	}
	return out, nil
}

// UpdateFromExecution applies one complete_task outcome to the class's
// aggregate: increments totals, recomputes the running mean
// µ' = µ + (x − µ)/n, and — on success — appends the refined task
// (capped at the 10 most recent) and merges in any new tools.
func (s *SemanticStore) UpdateFromExecution(class, refinedTask string, success bool, durationMS int64, tools []string) error {
	agentCap, err := s.Get(class)
	if err != nil {
		return err
	}
	now := time.Now()
	if agentCap == nil {
		agentCap = &AgentCapability{Class: class}
	}

	agentCap.AccessCount++
	agentCap.TotalRuns++
	if success {
		agentCap.SuccessfulRuns++
	}
	n := float64(agentCap.TotalRuns)
	agentCap.AvgDurationMS = agentCap.AvgDurationMS + (float64(durationMS)-agentCap.AvgDurationMS)/n

	if success {
		agentCap.TaskPatterns = append(agentCap.TaskPatterns, refinedTask)
		if len(agentCap.TaskPatterns) > 10 {
			agentCap.TaskPatterns = agentCap.TaskPatterns[len(agentCap.TaskPatterns)-10:]
		}
		agentCap.Tools = mergeUnique(agentCap.Tools, tools)
	}

	_, err = s.store.DB.Exec(`
		INSERT INTO semantic_memories (class, created_at, last_accessed, access_count, total_runs, successful_runs, avg_duration_ms, common_tools, task_patterns, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(class) DO UPDATE SET
			last_accessed=excluded.last_accessed, access_count=excluded.access_count, total_runs=excluded.total_runs,
			successful_runs=excluded.successful_runs, avg_duration_ms=excluded.avg_duration_ms,
			common_tools=excluded.common_tools, task_patterns=excluded.task_patterns
	`, class, now, now, agentCap.AccessCount, agentCap.TotalRuns, agentCap.SuccessfulRuns, agentCap.AvgDurationMS,
		encodeStrings(agentCap.Tools), encodeStrings(agentCap.TaskPatterns), encodeEmbedding(agentCap.Embedding))
	if err != nil {
		return fmt.Errorf("failed to update semantic row for %s: %w", class, err)
	}
	return nil
}

// Delete removes a stale semantic row outright (lifecycle: success_rate<0.5 and score<0.2).
func (s *SemanticStore) Delete(class string) error {
	_, err := s.store.DB.Exec(`DELETE FROM semantic_memories WHERE class = ?`, class)
	return err
}

func mergeUnique(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	out := append([]string(nil), existing...)
	for _, s := range existing {
		seen[s] = true
	}
	for _, s := range add {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
