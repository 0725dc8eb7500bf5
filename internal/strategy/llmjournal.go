package strategy

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// LLMJournal is the separate, append-only JSON-lines journal for
// LLM-backed strategies: one line per signal they return, carrying its
// reason and observations, never written to the main log. Prompts and raw
// model responses are not recorded.
type LLMJournal struct {
	mu   sync.Mutex
	path string
	file *os.File
}

type llmJournalEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	Strategy     string    `json:"strategy"`
	Symbol       string    `json:"symbol"`
	Reason       string    `json:"reason"`
	Observations string    `json:"observations"`
}

// NewLLMJournal opens path for appending (creating it if absent). An empty
// path disables the journal (Log becomes a no-op), used when no LLM-backed
// strategy is configured for the session.
func NewLLMJournal(path string) *LLMJournal {
	j := &LLMJournal{path: path}
	if path == "" {
		return j
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err == nil {
		j.file = f
	}
	return j
}

// Log appends one entry. Failures are swallowed: the LLM journal is a
// diagnostic aid, never a path that can fail a trading tick.
func (j *LLMJournal) Log(strategyName, symbol, reason, observations string) {
	if j == nil || j.file == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	entry := llmJournalEntry{
		Timestamp:    time.Now().UTC(),
		Strategy:     strategyName,
		Symbol:       symbol,
		Reason:       reason,
		Observations: observations,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	j.file.Write(append(line, '\n'))
}

func (j *LLMJournal) Close() error {
	if j == nil || j.file == nil {
		return nil
	}
	return j.file.Close()
}
