package memory

import (
	"fmt"
	"strings"
)

// SummarizeSession produces a lessons-learned rollup listing every
// successful episodic entry that has a summary, across the whole store
// (entries are not filtered by session), caching the result under
// sessionID in episode_summaries so repeated requests don't recompute it.
func (m *Manager) SummarizeSession(sessionID string) (string, error) {
	if cached, err := m.episodeSummaryCached(sessionID); err == nil && cached != "" {
		return cached, nil
	}

	entries, err := m.Episodic.AllForLifecycle()
	if err != nil {
		return "", fmt.Errorf("failed to list episodic entries: %w", err)
	}

	var lines []string
	for _, rec := range entries {
		if rec.Outcome != OutcomeSuccess || rec.Summary == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s → %s", rec.Class, rec.RefinedTask, rec.Summary))
	}

	var summary string
	if len(lines) == 0 {
		summary = "No successful tasks recorded this session."
	} else {
		summary = strings.Join(lines, "\n")
	}

	if err := m.storeEpisodeSummary(sessionID, summary); err != nil {
		return summary, fmt.Errorf("summary computed but not cached: %w", err)
	}
	return summary, nil
}

func (m *Manager) episodeSummaryCached(sessionID string) (string, error) {
	var summary string
	err := m.Episodic.store.DB.QueryRow(`SELECT summary FROM episode_summaries WHERE session_id = ?`, sessionID).Scan(&summary)
	return summary, err
}

func (m *Manager) storeEpisodeSummary(sessionID, summary string) error {
	_, err := m.Episodic.store.DB.Exec(`
		INSERT INTO episode_summaries (session_id, summary) VALUES (?, ?)
		ON CONFLICT(session_id) DO UPDATE SET summary=excluded.summary
	`, sessionID, summary)
	return err
}
