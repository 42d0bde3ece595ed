package daemon

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wardenhq/warden/internal/tool"
)

// ApprovalKind is one of the gated operation kinds a Pending Approval can
// describe (§3).
type ApprovalKind string

const (
	ApprovalWrite ApprovalKind = "write"
	ApprovalExec  ApprovalKind = "exec"
	ApprovalPatch ApprovalKind = "patch"
)

// PendingApproval is a record of a gated operation awaiting a human
// decision (§3).
type PendingApproval struct {
	ID          string
	Kind        ApprovalKind
	Description string
	Details     map[string]any
	CreatedAt   time.Time
	TimeoutAt   time.Time

	resolved chan decision
}

type decision struct {
	approved bool
}

// ApprovalTable is a RunContext's pending-approval map, guarded by a
// short-duration lock per §9 ("never hold the lock across approval I/O").
// A single ticker goroutine per RunContext sweeps expired entries
// (SPEC_FULL §4: the spec names timeoutAt and APPROVAL_TIMEOUT but leaves
// the sweep mechanism unspecified; this mirrors the teacher's worker-pool
// ticking pattern in internal/daemon/worker.go).
type ApprovalTable struct {
	mu      sync.Mutex
	entries map[string]*PendingApproval

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewApprovalTable creates an empty table and starts its sweep loop.
func NewApprovalTable() *ApprovalTable {
	t := &ApprovalTable{entries: make(map[string]*PendingApproval), stopCh: make(chan struct{})}
	go t.sweepLoop()
	return t
}

// Create registers a new pending approval with the given timeout and
// returns it; the caller blocks on Wait for the eventual decision.
func (t *ApprovalTable) Create(kind ApprovalKind, description string, details map[string]any, timeout time.Duration) *PendingApproval {
	now := time.Now()
	pa := &PendingApproval{
		ID:          uuid.NewString(),
		Kind:        kind,
		Description: description,
		Details:     details,
		CreatedAt:   now,
		TimeoutAt:   now.Add(timeout),
		resolved:    make(chan decision, 1),
	}

	t.mu.Lock()
	t.entries[pa.ID] = pa
	t.mu.Unlock()

	return pa
}

// Decide resolves a pending approval by id. Returns false if no such
// pending approval exists (already resolved, timed out, or unknown id).
func (t *ApprovalTable) Decide(id string, approved bool) bool {
	t.mu.Lock()
	pa, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	pa.resolved <- decision{approved: approved}
	return true
}

// List returns every currently pending approval, most recently created last.
func (t *ApprovalTable) List() []*PendingApproval {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*PendingApproval, 0, len(t.entries))
	for _, pa := range t.entries {
		out = append(out, pa)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Wait blocks until pa is decided or its timeout elapses, returning
// APPROVAL_DENIED or APPROVAL_TIMEOUT as appropriate. A nil error means
// approved.
func (pa *PendingApproval) Wait() *tool.Error {
	timer := time.NewTimer(time.Until(pa.TimeoutAt))
	defer timer.Stop()

	select {
	case d := <-pa.resolved:
		if !d.approved {
			return tool.Errorf(tool.CodeApprovalDenied, "approval %s denied", pa.ID)
		}
		return nil
	case <-timer.C:
		return tool.Errorf(tool.CodeApprovalTimeout, "approval %s timed out", pa.ID)
	}
}

// Stop halts the sweep loop. Safe to call multiple times.
func (t *ApprovalTable) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

func (t *ApprovalTable) sweepLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			t.sweepExpired()
		}
	}
}

func (t *ApprovalTable) sweepExpired() {
	now := time.Now()
	t.mu.Lock()
	var expired []*PendingApproval
	for id, pa := range t.entries {
		if now.After(pa.TimeoutAt) {
			expired = append(expired, pa)
			delete(t.entries, id)
		}
	}
	t.mu.Unlock()

	for _, pa := range expired {
		select {
		case pa.resolved <- decision{approved: false}:
		default:
		}
	}
}
