package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Handler executes one tool call. Implementations live in internal/fsops,
// internal/vcsops and internal/supervisor; they are wired into the registry
// by internal/daemon, which is the only package that knows the concrete
// caller type (its RunContext). caller is passed through untyped so this
// package never imports daemon.
type Handler func(ctx context.Context, caller any, raw json.RawMessage) (any, *Error)

// Registration binds a Descriptor to its Handler.
type Registration struct {
	Descriptor Descriptor
	Handle     Handler
}

// Registry is the fixed, process-wide tool catalogue (§3 "registered at
// process start; read-only thereafter"). Reads take the read lock; Register
// is refused after Freeze.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
	frozen  bool
}

// NewRegistry returns an empty registry ready for Register calls.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Registration)}
}

// Register adds a tool. Panics if called after Freeze or if the name is
// already registered — both are programmer errors caught at process start,
// per §3 "Names are globally unique."
func (r *Registry) Register(reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic("tool: Register called after Freeze")
	}
	if _, exists := r.entries[reg.Descriptor.Name]; exists {
		panic(fmt.Sprintf("tool: duplicate registration for %q", reg.Descriptor.Name))
	}
	r.entries[reg.Descriptor.Name] = reg
}

// Freeze marks the registry read-only. Call once at process start after all
// Register calls.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Descriptors returns every registered tool's descriptor in a stable order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.entries))
	for _, reg := range r.entries {
		out = append(out, reg.Descriptor)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// VisibleAt returns the descriptors a session at the given tier may call,
// i.e. every tool whose required tier is <= the session's tier.
func (r *Registry) VisibleAt(tier Tier) []Descriptor {
	all := r.Descriptors()
	out := make([]Descriptor, 0, len(all))
	for _, d := range all {
		if d.Tier <= tier {
			out = append(out, d)
		}
	}
	return out
}

// Dispatch implements the C4 dispatch algorithm: look up by name, enforce
// the tier lattice, then invoke the handler. Input-schema validation is the
// handler's responsibility (it knows its own request shape); decode errors
// there must map to CodeInvalidPath per §9.
func (r *Registry) Dispatch(ctx context.Context, name string, callerTier Tier, caller any, raw json.RawMessage) (any, *Error) {
	r.mu.RLock()
	reg, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, Errorf(CodeInternalError, "unknown tool %q", name)
	}

	if callerTier < reg.Descriptor.Tier {
		return nil, Errorf(CodeForbiddenPath, "tool %q requires tier %s, session is %s", name, reg.Descriptor.Tier, callerTier)
	}

	result, err := reg.Handle(ctx, caller, raw)
	if err != nil {
		return nil, err
	}
	return result, nil
}
