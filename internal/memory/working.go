package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const conversationRingSize = 20

// WorkingMemory is the RAM-only current-session tier: the in-flight
// task, a bounded conversation ring, a time-bounded passive-
// transcription buffer, and a scratch map. Never persisted across a
// process restart and never shared across tasks.
type WorkingMemory struct {
	mu sync.Mutex

	sessionID string
	current   *TaskRecord

	conversation []ConversationTurn
	passive      []PassiveEntry
	passiveTTL   time.Duration

	scratch map[string]string
}

// NewWorkingMemory creates a fresh working tier for one session.
func NewWorkingMemory(passiveBufferMinutes int) *WorkingMemory {
	if passiveBufferMinutes <= 0 {
		passiveBufferMinutes = 5
	}
	return &WorkingMemory{
		sessionID:  uuid.New().String(),
		passiveTTL: time.Duration(passiveBufferMinutes) * time.Minute,
		scratch:    make(map[string]string),
	}
}

// SessionID returns the session's identity, stable for the process lifetime.
func (w *WorkingMemory) SessionID() string { return w.sessionID }

// StartTask begins a new current task. If one is already in flight it
// is forcibly partial-completed first and returned so the caller can
// finalize it in episodic memory.
func (w *WorkingMemory) StartTask(rawTask string) (evicted *TaskRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current != nil {
		w.current.Outcome = OutcomePartial
		if w.current.ErrorText == "" {
			w.current.ErrorText = "superseded by a new task before completion"
		}
		evicted = w.current
	}

	w.current = &TaskRecord{
		ID:          uuid.New().String(),
		RawTask:     rawTask,
		RefinedTask: rawTask,
		Class:       "",
		Outcome:     OutcomePending,
		CreatedAt:   time.Now(),
		Tier:        TierWorking,
	}
	return evicted
}

// Current returns the in-flight task, or nil if none.
func (w *WorkingMemory) Current() *TaskRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// ClearCurrent drops the in-flight task after it has been finalized
// into episodic memory.
func (w *WorkingMemory) ClearCurrent() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = nil
}

// AddConversationTurn appends to the ring, evicting the oldest entry
// past conversationRingSize.
func (w *WorkingMemory) AddConversationTurn(role, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conversation = append(w.conversation, ConversationTurn{Role: role, Text: text, At: time.Now()})
	if len(w.conversation) > conversationRingSize {
		w.conversation = w.conversation[len(w.conversation)-conversationRingSize:]
	}
}

// RecentConversation returns up to n most recent conversation turns,
// newest last.
func (w *WorkingMemory) RecentConversation(n int) []ConversationTurn {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n > len(w.conversation) {
		n = len(w.conversation)
	}
	if n <= 0 {
		return nil
	}
	out := make([]ConversationTurn, n)
	copy(out, w.conversation[len(w.conversation)-n:])
	return out
}

// AddPassive appends a passive-transcription entry, lazily evicting
// entries older than the configured TTL.
func (w *WorkingMemory) AddPassive(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.passive = append(w.passive, PassiveEntry{Text: text, At: time.Now()})
	w.evictStalePassiveLocked()
}

// PassiveBuffer returns the live (non-expired) passive buffer entries.
func (w *WorkingMemory) PassiveBuffer() []PassiveEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictStalePassiveLocked()
	out := make([]PassiveEntry, len(w.passive))
	copy(out, w.passive)
	return out
}

func (w *WorkingMemory) evictStalePassiveLocked() {
	cutoff := time.Now().Add(-w.passiveTTL)
	live := w.passive[:0]
	for _, e := range w.passive {
		if e.At.After(cutoff) {
			live = append(live, e)
		}
	}
	w.passive = live
}

// SetScratch/GetScratch hold small transient key/value state for the
// duration of the process (e.g. a half-built plan awaiting a tool
// result).
func (w *WorkingMemory) SetScratch(key, value string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scratch[key] = value
}

func (w *WorkingMemory) GetScratch(key string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.scratch[key]
	return v, ok
}
