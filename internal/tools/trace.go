package tools

import (
	"sync"
	"time"
)

// Reason tags classify how a navigation call resolved.
const (
	ReasonOK        = "ok"
	ReasonEmpty     = "empty"     // valid query, nothing found
	ReasonTruncated = "truncated" // result was cut to fit a size cap
	ReasonNotFound  = "not_found" // named file absent
	ReasonDenied    = "denied"    // path outside the project root
	ReasonError     = "error"
)

// TraceEntry records one navigation call for the session transcript.
type TraceEntry struct {
	Tool       string    `json:"tool"`
	Arg        string    `json:"arg,omitempty"`
	Time       time.Time `json:"time"`
	Success    bool      `json:"success"`
	ResultSize int       `json:"result_size"`
	Reason     string    `json:"reason"`
}

// Trace accumulates what a review actually explored. The review loop reads
// its counters to enforce exploration bounds, and its summary is returned to
// the caller alongside the review text.
type Trace struct {
	mu      sync.Mutex
	entries []TraceEntry
	files   map[string]bool
	symbols map[string]bool
}

func NewTrace() *Trace {
	return &Trace{
		files:   make(map[string]bool),
		symbols: make(map[string]bool),
	}
}

func (t *Trace) record(tool, arg string, success bool, size int, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, TraceEntry{
		Tool:       tool,
		Arg:        arg,
		Time:       time.Now().UTC(),
		Success:    success,
		ResultSize: size,
		Reason:     reason,
	})
}

func (t *Trace) recordFile(rel string) {
	t.mu.Lock()
	t.files[rel] = true
	t.mu.Unlock()
}

func (t *Trace) recordSymbol(name string) {
	t.mu.Lock()
	t.symbols[name] = true
	t.mu.Unlock()
}

// TotalCalls returns the number of navigation calls made so far.
func (t *Trace) TotalCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// FilesRead returns the number of distinct files read so far.
func (t *Trace) FilesRead() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.files)
}

// HasReadFile reports whether a file was already read this review; reading
// it again does not consume the distinct-files budget.
func (t *Trace) HasReadFile(rel string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.files[rel]
}

// Summary is the navigation digest attached to a finished review.
type Summary struct {
	TotalCalls      int          `json:"total_navigation_calls"`
	FilesExplored   int          `json:"total_files_explored"`
	SymbolsSearched int          `json:"symbols_searched"`
	Entries         []TraceEntry `json:"entries"`
}

func (t *Trace) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Summary{
		TotalCalls:      len(t.entries),
		FilesExplored:   len(t.files),
		SymbolsSearched: len(t.symbols),
		Entries:         append([]TraceEntry(nil), t.entries...),
	}
}
