package daemon

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"github.com/wardenhq/warden/internal/cmdguard"
	"github.com/wardenhq/warden/internal/fsops"
	"github.com/wardenhq/warden/internal/supervisor"
	"github.com/wardenhq/warden/internal/tool"
	"github.com/wardenhq/warden/internal/vcsops"
)

// BuildRegistry registers the fixed §4.3 catalogue, binding each tool's
// Handler to the fsops/vcsops/supervisor implementations. Called once per
// process; the returned registry is frozen and safe to share across every
// session and workspace (the Workspace for a given call comes from the
// caller's RunContext, not from the registry).
func BuildRegistry() *tool.Registry {
	reg := tool.NewRegistry()

	reg.Register(tool.Registration{
		Descriptor: tool.Descriptor{Name: "fs.list", Tier: tool.TierRead, Summary: "List entries in a workspace-relative directory."},
		Handle:     handleFSList,
	})
	reg.Register(tool.Registration{
		Descriptor: tool.Descriptor{Name: "fs.read", Tier: tool.TierRead, Summary: "Read a bounded slice of a file."},
		Handle:     handleFSRead,
	})
	reg.Register(tool.Registration{
		Descriptor: tool.Descriptor{Name: "fs.apply_patch", Tier: tool.TierWrite, RequiresApproval: true, Summary: "Apply a unified diff."},
		Handle:     handleFSApplyPatch,
	})
	reg.Register(tool.Registration{
		Descriptor: tool.Descriptor{Name: "vcs.status", Tier: tool.TierRead, Summary: "Branch, ahead/behind, file statuses."},
		Handle:     handleVCSStatus,
	})
	reg.Register(tool.Registration{
		Descriptor: tool.Descriptor{Name: "vcs.diff", Tier: tool.TierRead, Summary: "Working or staged diff, optionally path-limited."},
		Handle:     handleVCSDiff,
	})
	reg.Register(tool.Registration{
		Descriptor: tool.Descriptor{Name: "vcs.checkout", Tier: tool.TierWrite, RequiresApproval: true, Summary: "Switch branch; optionally create."},
		Handle:     handleVCSCheckout,
	})
	reg.Register(tool.Registration{
		Descriptor: tool.Descriptor{Name: "vcs.commit", Tier: tool.TierWrite, RequiresApproval: true, Summary: "Stage chosen files or all, then commit."},
		Handle:     handleVCSCommit,
	})
	reg.Register(tool.Registration{
		Descriptor: tool.Descriptor{Name: "cmd.run", Tier: tool.TierExec, RequiresApproval: true, Summary: "Spawn an allowlisted command."},
		Handle:     handleCmdRun,
	})

	reg.Freeze()
	return reg
}

func runContextFrom(caller any) (*RunContext, *tool.Error) {
	rc, ok := caller.(*RunContext)
	if !ok {
		return nil, tool.Errorf(tool.CodeInternalError, "handler invoked with an unexpected caller type")
	}
	return rc, nil
}

func decode[T any](raw json.RawMessage, out *T) *tool.Error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return tool.Errorf(tool.CodeInvalidPath, "invalid request payload: %v", err)
	}
	return nil
}

// gate enforces the approval policy for a write/exec-tier tool: if the
// tool requires approval and the policy has it enabled for that category,
// block until a pending approval is decided or its timeout elapses.
// Timing out with no decision maps to APPROVAL_TIMEOUT, which is this
// kernel's fail-closed behavior when no approval channel is listening
// (SPEC_FULL's resolution of the spec's own open question).
func gate(rc *RunContext, required bool, kind ApprovalKind, description string, details map[string]any) *tool.Error {
	if !required {
		return nil
	}
	if matchesAny(rc.approvalPolicy.AutoApprovePatterns, description) {
		return nil
	}
	pa := rc.Approvals.Create(kind, description, details, rc.approvalPolicy.Timeout)
	return pa.Wait()
}

func matchesAny(patterns []string, s string) bool {
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

type fsListRequest struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
	MaxDepth  int    `json:"maxDepth"`
}

func handleFSList(_ context.Context, caller any, raw json.RawMessage) (any, *tool.Error) {
	rc, tErr := runContextFrom(caller)
	if tErr != nil {
		return nil, tErr
	}
	var req fsListRequest
	if tErr := decode(raw, &req); tErr != nil {
		return nil, tErr
	}
	return fsops.New(rc.Workspace.Guard).List(req.Path, req.Recursive, req.MaxDepth)
}

type fsReadRequest struct {
	Path     string `json:"path"`
	Offset   int64  `json:"offset"`
	MaxBytes int64  `json:"maxBytes"`
}

func handleFSRead(_ context.Context, caller any, raw json.RawMessage) (any, *tool.Error) {
	rc, tErr := runContextFrom(caller)
	if tErr != nil {
		return nil, tErr
	}
	var req fsReadRequest
	if tErr := decode(raw, &req); tErr != nil {
		return nil, tErr
	}
	return fsops.New(rc.Workspace.Guard).Read(req.Path, req.Offset, req.MaxBytes)
}

type fsApplyPatchRequest struct {
	PatchUnified string `json:"patchUnified"`
	DryRun       bool   `json:"dryRun"`
}

func handleFSApplyPatch(ctx context.Context, caller any, raw json.RawMessage) (any, *tool.Error) {
	rc, tErr := runContextFrom(caller)
	if tErr != nil {
		return nil, tErr
	}
	var req fsApplyPatchRequest
	if tErr := decode(raw, &req); tErr != nil {
		return nil, tErr
	}

	if rc.Workspace.Tier < tool.TierWrite {
		return nil, tool.Errorf(tool.CodeForbiddenPath, "fs.apply_patch requires write tier")
	}

	if !req.DryRun {
		if tErr := gate(rc, rc.approvalPolicy.RequireWriteApproval, ApprovalPatch, "apply patch", map[string]any{"dryRun": req.DryRun}); tErr != nil {
			return nil, tErr
		}
	}

	return fsops.New(rc.Workspace.Guard).ApplyPatch(ctx, req.PatchUnified, req.DryRun)
}

func handleVCSStatus(ctx context.Context, caller any, _ json.RawMessage) (any, *tool.Error) {
	rc, tErr := runContextFrom(caller)
	if tErr != nil {
		return nil, tErr
	}
	if !rc.Workspace.AllowVCS {
		return nil, tool.Errorf(tool.CodeVCSError, "vcs tools disabled for this workspace")
	}
	return vcsops.New(rc.Workspace.Root).Status(ctx)
}

type vcsDiffRequest struct {
	Staged bool   `json:"staged"`
	Path   string `json:"path"`
}

func handleVCSDiff(ctx context.Context, caller any, raw json.RawMessage) (any, *tool.Error) {
	rc, tErr := runContextFrom(caller)
	if tErr != nil {
		return nil, tErr
	}
	if !rc.Workspace.AllowVCS {
		return nil, tool.Errorf(tool.CodeVCSError, "vcs tools disabled for this workspace")
	}
	var req vcsDiffRequest
	if tErr := decode(raw, &req); tErr != nil {
		return nil, tErr
	}
	return vcsops.New(rc.Workspace.Root).Diff(ctx, req.Staged, req.Path)
}

type vcsCheckoutRequest struct {
	Branch string `json:"branch"`
	Create bool   `json:"create"`
}

func handleVCSCheckout(ctx context.Context, caller any, raw json.RawMessage) (any, *tool.Error) {
	rc, tErr := runContextFrom(caller)
	if tErr != nil {
		return nil, tErr
	}
	if !rc.Workspace.AllowVCS {
		return nil, tool.Errorf(tool.CodeVCSError, "vcs tools disabled for this workspace")
	}
	if rc.Workspace.Tier < tool.TierWrite {
		return nil, tool.Errorf(tool.CodeForbiddenPath, "vcs.checkout requires write tier")
	}
	var req vcsCheckoutRequest
	if tErr := decode(raw, &req); tErr != nil {
		return nil, tErr
	}

	if tErr := gate(rc, rc.approvalPolicy.RequireWriteApproval, ApprovalWrite, "checkout "+req.Branch, map[string]any{"branch": req.Branch, "create": req.Create}); tErr != nil {
		return nil, tErr
	}

	return vcsops.New(rc.Workspace.Root).Checkout(ctx, req.Branch, req.Create)
}

type vcsCommitRequest struct {
	Files   []string `json:"files"`
	Message string   `json:"message"`
}

func handleVCSCommit(ctx context.Context, caller any, raw json.RawMessage) (any, *tool.Error) {
	rc, tErr := runContextFrom(caller)
	if tErr != nil {
		return nil, tErr
	}
	if !rc.Workspace.AllowVCS {
		return nil, tool.Errorf(tool.CodeVCSError, "vcs tools disabled for this workspace")
	}
	if rc.Workspace.Tier < tool.TierWrite {
		return nil, tool.Errorf(tool.CodeForbiddenPath, "vcs.commit requires write tier")
	}
	var req vcsCommitRequest
	if tErr := decode(raw, &req); tErr != nil {
		return nil, tErr
	}

	if tErr := gate(rc, rc.approvalPolicy.RequireWriteApproval, ApprovalWrite, "commit: "+req.Message, map[string]any{"files": req.Files}); tErr != nil {
		return nil, tErr
	}

	return vcsops.New(rc.Workspace.Root).Commit(ctx, req.Files, req.Message)
}

type cmdRunRequest struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Cwd     string            `json:"cwd"`
	Env     map[string]string `json:"env"`
	TimeoutS int              `json:"timeoutS"`
}

func handleCmdRun(ctx context.Context, caller any, raw json.RawMessage) (any, *tool.Error) {
	rc, tErr := runContextFrom(caller)
	if tErr != nil {
		return nil, tErr
	}
	if rc.Workspace.Tier < tool.TierExec {
		return nil, tool.Errorf(tool.CodeForbiddenPath, "cmd.run requires exec tier")
	}

	var req cmdRunRequest
	if tErr := decode(raw, &req); tErr != nil {
		return nil, tErr
	}

	command, args := req.Command, req.Args
	if len(args) == 0 && command != "" {
		parsedCmd, parsedArgs := cmdguard.Split(command)
		command, args = parsedCmd, parsedArgs
	} else {
		parsed, extra := cmdguard.Split(command)
		command = parsed
		args = append(append([]string{}, extra...), args...)
	}

	decision := cmdguard.Validate(command, args, rc.commandPolicy.Allow, rc.commandPolicy.Deny)
	if !decision.Allowed {
		return nil, tool.Errorf(tool.CodeCommandDenied, "%s", decision.Reason).
			WithDetails(map[string]any{"pattern": decision.Pattern})
	}

	var cwd string
	if req.Cwd != "" {
		res, gErr := rc.Workspace.Guard.Resolve(req.Cwd)
		if gErr != nil {
			return nil, gErr
		}
		cwd = res.Absolute
	}

	if tErr := gate(rc, rc.approvalPolicy.RequireExecApproval, ApprovalExec, command+" "+joinArgs(args), map[string]any{"command": command, "args": args}); tErr != nil {
		return nil, tErr
	}

	timeout := supervisor.DefaultTimeout
	if req.TimeoutS > 0 {
		if requested := time.Duration(req.TimeoutS) * time.Second; requested < timeout {
			timeout = requested
		}
	}

	return supervisor.Run(ctx, supervisor.Options{
		Command: command,
		Args:    args,
		Cwd:     cwd,
		Env:     req.Env,
		Timeout: timeout,
	})
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}
