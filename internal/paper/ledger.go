package paper

import (
	"sync"
	"time"
)

// EntryKind distinguishes fills from settlement closeouts.
type EntryKind string

const (
	EntryFill       EntryKind = "fill"
	EntrySettlement EntryKind = "settlement"
)

// Entry is one line of the round's transaction history.
type Entry struct {
	Kind    EntryKind `json:"kind"`
	Round   string    `json:"round"`
	OrderID string    `json:"orderId,omitempty"`
	AssetID string    `json:"assetId"`
	Label   string    `json:"label"`
	Side    string    `json:"side"`
	Price   float64   `json:"price"`
	Qty     float64   `json:"qty"`
	PnL     *float64  `json:"pnl,omitempty"`
	Ts      time.Time `json:"ts"`
}

// Recorder captures history entries outside the process, e.g. a JSONL file.
type Recorder interface {
	Record(Entry)
}

// History stores the current round's entries in memory and mirrors them to an optional recorder.
type History struct {
	mu       sync.Mutex
	entries  []Entry
	recorder Recorder
}

// NewHistory creates an empty history optionally pre-sizing storage.
func NewHistory(capacity int, recorder Recorder) *History {
	if capacity < 0 {
		capacity = 0
	}
	return &History{entries: make([]Entry, 0, capacity), recorder: recorder}
}

// Record appends an entry.
func (h *History) Record(e Entry) {
	h.mu.Lock()
	h.entries = append(h.entries, e)
	h.mu.Unlock()
	if h.recorder != nil {
		h.recorder.Record(e)
	}
}

// Snapshot returns a copy of the recorded entries.
func (h *History) Snapshot() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Reset clears all stored entries; the recorder keeps what it already wrote.
func (h *History) Reset() {
	h.mu.Lock()
	h.entries = h.entries[:0]
	h.mu.Unlock()
}
