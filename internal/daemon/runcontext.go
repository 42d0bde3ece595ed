package daemon

import (
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/wardenhq/warden/internal/audit"
	"github.com/wardenhq/warden/internal/config"
)

// RunContext is per-session mutable state bound to exactly one Workspace
// for its lifetime (§3): the audit buffer, call counters, and the pending
// approval table.
type RunContext struct {
	RunID     string
	Workspace *Workspace
	Approvals *ApprovalTable
	Audit     *audit.Recorder

	approvalPolicy ApprovalPolicy
	commandPolicy  CommandPolicy

	turns     int64
	toolCalls int64
}

// ApprovalPolicy mirrors the config `approvals` section resolved for one
// RunContext.
type ApprovalPolicy struct {
	RequireWriteApproval bool
	RequireExecApproval  bool
	AutoApprovePatterns  []string
	Timeout              time.Duration
}

// CommandPolicy mirrors the config `commands` section: the user allow/deny
// regex layers cmdguard.Validate consults between the built-in always-deny
// and built-in default-allow layers (§4.2).
type CommandPolicy struct {
	Allow []string
	Deny  []string
}

// NewRunContext creates a RunContext bound to ws, with an audit recorder
// flushing under dataDir/audit.
func NewRunContext(ws *Workspace, policy ApprovalPolicy, cmdPolicy CommandPolicy, dataDir string) (*RunContext, error) {
	runID := uuid.NewString()
	rec, err := audit.New(runID, filepath.Join(dataDir, "audit"))
	if err != nil {
		return nil, err
	}
	return &RunContext{
		RunID:          runID,
		Workspace:      ws,
		Approvals:      NewApprovalTable(),
		Audit:          rec,
		approvalPolicy: policy,
		commandPolicy:  cmdPolicy,
	}, nil
}

// Close stops the RunContext's background goroutines and flushes its
// audit buffer. Called on session disconnect.
func (rc *RunContext) Close() {
	rc.Approvals.Stop()
	_ = rc.Audit.Flush()
}

// IncrTurn and IncrToolCall maintain the counters named in §3's data model.
func (rc *RunContext) IncrTurn()     { atomic.AddInt64(&rc.turns, 1) }
func (rc *RunContext) IncrToolCall() { atomic.AddInt64(&rc.toolCalls, 1) }

func (rc *RunContext) Turns() int64     { return atomic.LoadInt64(&rc.turns) }
func (rc *RunContext) ToolCalls() int64 { return atomic.LoadInt64(&rc.toolCalls) }

// ApprovalPolicyFromConfig builds an ApprovalPolicy from the daemon-wide
// config's approvals section.
func ApprovalPolicyFromConfig(cfg config.Approvals) ApprovalPolicy {
	timeout := time.Duration(cfg.ApprovalTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return ApprovalPolicy{
		RequireWriteApproval: cfg.RequireWriteApproval,
		RequireExecApproval:  cfg.RequireExecApproval,
		AutoApprovePatterns:  cfg.AutoApprovePatterns,
		Timeout:              timeout,
	}
}

// CommandPolicyFromConfig builds a CommandPolicy from the daemon-wide
// config's commands section.
func CommandPolicyFromConfig(cfg config.Commands) CommandPolicy {
	return CommandPolicy{Allow: cfg.Allow, Deny: cfg.Deny}
}
