package memory

import (
	"fmt"
	"strings"
)

// Slicer assembles a ContextSlice for sub-agent generation prompts:
// similar past successful tasks, matching semantic patterns, recent
// conversation, and (when the class is known) its aggregate stats.
// Sub-agents are stateless — this is the only memory they ever see,
// injected once at spawn time.
type Slicer struct {
	episodic *EpisodicStore
	semantic *SemanticStore
	embedder EmbeddingProvider
	working  *WorkingMemory
}

// NewSlicer wires the slicer to the tiers it reads from.
func NewSlicer(episodic *EpisodicStore, semantic *SemanticStore, embedder EmbeddingProvider, working *WorkingMemory) *Slicer {
	return &Slicer{episodic: episodic, semantic: semantic, embedder: embedder, working: working}
}

// SliceForTask builds the context a generation prompt should carry for
// taskText (optionally scoped to a known class).
func (s *Slicer) SliceForTask(taskText, class string) (ContextSlice, error) {
	var slice ContextSlice

	var queryEmbedding []float32
	if s.embedder != nil {
		vec, err := s.embedder.Embed(taskText)
		if err == nil {
			queryEmbedding = vec
		}
	}

	if queryEmbedding != nil {
		similar, err := s.episodic.RecallSimilar(queryEmbedding, 3, true, class)
		if err != nil {
			return slice, fmt.Errorf("failed to recall similar tasks: %w", err)
		}
		for _, rec := range similar {
			slice.SimilarTasks = append(slice.SimilarTasks, SimilarTask{
				Text:    rec.RefinedTask,
				Summary: rec.Summary,
				Tools:   rec.Tools,
			})
		}
	}

	if class != "" {
		agentCap, err := s.semantic.Get(class)
		if err != nil {
			return slice, fmt.Errorf("failed to load semantic capability for %s: %w", class, err)
		}
		if agentCap != nil {
			slice.ClassKnown = true
			slice.SuccessRate = agentCap.SuccessRate()
			slice.AvgDurationMS = agentCap.AvgDurationMS

			patterns := agentCap.TaskPatterns
			if len(patterns) > 2 {
				patterns = patterns[len(patterns)-2:]
			}
			slice.RelevantPatterns = patterns
			slice.CommonTools = agentCap.Tools
		}
	}

	if s.working != nil {
		slice.RecentConversation = s.working.RecentConversation(2)
	}

	return slice, nil
}

// Render produces the Markdown-ish prompt preamble the generator
// prepends ahead of the class template. An empty slice renders an
// empty string so the generator's prompt carries no stray header.
func (c ContextSlice) Render() string {
	if len(c.SimilarTasks) == 0 && len(c.RelevantPatterns) == 0 && !c.ClassKnown && len(c.RecentConversation) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Context from Previous Experience\n\n")

	if len(c.SimilarTasks) > 0 {
		b.WriteString("### Similar past tasks\n")
		for _, t := range c.SimilarTasks {
			fmt.Fprintf(&b, "- %q → %s\n", t.Text, t.Summary)
		}
		b.WriteString("\n")
	}

	if len(c.RelevantPatterns) > 0 {
		b.WriteString("### Relevant patterns\n")
		for _, p := range c.RelevantPatterns {
			fmt.Fprintf(&b, "- %s\n", p)
		}
		if len(c.CommonTools) > 0 {
			fmt.Fprintf(&b, "- common tools: %s\n", strings.Join(c.CommonTools, ", "))
		}
		b.WriteString("\n")
	}

	if c.ClassKnown {
		fmt.Fprintf(&b, "### Class track record\nsuccess rate %.0f%%, average duration %.0fms\n\n", c.SuccessRate*100, c.AvgDurationMS)
	}

	if len(c.RecentConversation) > 0 {
		b.WriteString("### Recent conversation\n")
		for _, turn := range c.RecentConversation {
			fmt.Fprintf(&b, "- %s: %s\n", turn.Role, turn.Text)
		}
		b.WriteString("\n")
	}

	return b.String()
}
