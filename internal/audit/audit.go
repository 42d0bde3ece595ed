// Package audit implements C9: an append-only, per-run record of every
// authorisation decision and tool call, such that the whole run is
// reconstructible from the log alone. The recorder is a pure observer — it
// is never consulted for authorisation.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/tool"
)

// Type is one of the closed set of audit entry kinds (§3).
type Type string

const (
	TypeToolCall Type = "tool_call"
	TypeApproval Type = "approval"
	TypePatch    Type = "patch"
	TypeCommand  Type = "command"
	TypeError    Type = "error"
)

// Entry is one append-only audit record.
type Entry struct {
	Timestamp  time.Time  `json:"ts"`
	RunID      string     `json:"runId"`
	Type       Type       `json:"type"`
	Tool       string     `json:"tool,omitempty"`
	Input      any        `json:"input,omitempty"`
	Output     any        `json:"output,omitempty"`
	DurationMS int64      `json:"durationMs,omitempty"`
	Error      *tool.Error `json:"error,omitempty"`
}

// Recorder buffers a RunContext's entries in memory and flushes them as
// one JSON document per line at `<dir>/<runId>.jsonl`.
type Recorder struct {
	mu      sync.Mutex
	runID   string
	path    string
	buffer  []Entry
	flushed int
}

// New creates a Recorder for runID, persisting under dir
// (<configDir>/audit in production).
func New(runID, dir string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Recorder{
		runID: runID,
		path:  filepath.Join(dir, runID+".jsonl"),
	}, nil
}

// Record appends entry to the in-memory buffer, stamping its timestamp if
// unset and always setting its runId to the recorder's.
func (r *Recorder) Record(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.RunID = r.runID

	r.mu.Lock()
	r.buffer = append(r.buffer, entry)
	r.mu.Unlock()
}

// Entries returns a copy of every entry recorded so far, flushed or not.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.buffer))
	copy(out, r.buffer)
	return out
}

// Flush persists every entry recorded since the last Flush, appending one
// JSON document per line. Safe to call repeatedly; already-flushed entries
// are never rewritten.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	pending := r.buffer[r.flushed:]
	toFlush := make([]Entry, len(pending))
	copy(toFlush, pending)
	r.mu.Unlock()

	if len(toFlush) == 0 {
		return nil
	}

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, e := range toFlush {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}

	r.mu.Lock()
	r.flushed += len(toFlush)
	r.mu.Unlock()
	return nil
}

// Path returns the on-disk location entries are flushed to.
func (r *Recorder) Path() string {
	return r.path
}
