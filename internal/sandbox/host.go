// Package sandbox implements the Sandbox Host: instantiating one
// WebAssembly component per actor instance, binding the host capability
// surface it imports, and driving it through its per-instance lifecycle.
package sandbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"

	"github.com/wasmind-run/fabric/internal/bus"
	"github.com/wasmind-run/fabric/internal/fabscope"
)

// hostModuleName is the import namespace every guest component must import
// its host capability functions from.
const hostModuleName = "fabric_host"

// SpawnFunc delegates a guest's spawn_agent call to the Coordinator. It
// returns the freshly allocated child scope. Injected rather than imported
// directly so this package never depends on the coordinator package -
// spawning a child scope is a host call that reaches back out to C5, and
// the coordinator is what constructs Sandbox Hosts in the first place.
type SpawnFunc func(
	ctx context.Context,
	parentScope fabscope.Scope,
	actorLogicalNames []string,
	name string,
) (fabscope.Scope, error)

// Host owns the WebAssembly runtime shared by every sandbox instance in the
// process, plus the host capability bindings every instance's guest module
// imports.
type Host struct {
	runtime wazero.Runtime
	bus     *bus.Bus
	tree    *fabscope.Tree
	spawn   SpawnFunc

	// hostInfo backs the read-only host_info capability.
	hostInfo map[string]string

	mu        sync.RWMutex
	compiled  map[string]wazero.CompiledModule
	instances map[string]*Instance
}

// NewHost constructs a Host bound to b for message delivery, tree for
// scope-ancestry lookups, and spawn for delegating spawn_agent calls to the
// coordinator.
func NewHost(
	ctx context.Context,
	b *bus.Bus,
	tree *fabscope.Tree,
	spawn SpawnFunc,
	hostInfo map[string]string,
) (*Host, error) {

	h := &Host{
		runtime:   wazero.NewRuntime(ctx),
		bus:       b,
		tree:      tree,
		spawn:     spawn,
		hostInfo:  hostInfo,
		compiled:  make(map[string]wazero.CompiledModule),
		instances: make(map[string]*Instance),
	}

	if err := h.buildHostModule(ctx); err != nil {
		_ = h.runtime.Close(ctx)
		return nil, fmt.Errorf("building host capability module: %w", err)
	}

	return h, nil
}

// Close tears down the underlying WebAssembly runtime and every compiled
// module cached against it.
func (h *Host) Close(ctx context.Context) error {
	return h.runtime.Close(ctx)
}

// compile returns the cached compiled module for componentHash, compiling
// componentBytes on first use.
func (h *Host) compile(
	ctx context.Context, componentHash string, componentBytes []byte,
) (wazero.CompiledModule, error) {

	h.mu.RLock()
	compiled, ok := h.compiled[componentHash]
	h.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	compiled, err := h.runtime.CompileModule(ctx, componentBytes)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.compiled[componentHash] = compiled
	h.mu.Unlock()

	return compiled, nil
}

func (h *Host) registerInstance(name string, inst *Instance) {
	h.mu.Lock()
	h.instances[name] = inst
	h.mu.Unlock()
}

func (h *Host) unregisterInstance(name string) {
	h.mu.Lock()
	delete(h.instances, name)
	h.mu.Unlock()
}

func (h *Host) instanceByModuleName(name string) (*Instance, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	inst, ok := h.instances[name]
	return inst, ok
}
