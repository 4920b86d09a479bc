package sandbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wasmind-run/fabric/internal/bus"
	"github.com/wasmind-run/fabric/internal/envelope"
	"github.com/wasmind-run/fabric/internal/fabscope"
)

// Instance is one running sandbox component: a guest module plus the host
// handle returned by its "new" export, subscribed to the bus and driven by
// its own receive loop goroutine.
type Instance struct {
	host *Host
	mod  api.Module

	actorID string
	scope   fabscope.Scope
	handle  uint32

	resources *resourceTable

	// corrID is the correlation id of the envelope currently being
	// handled, readable by capability bindings invoked synchronously from
	// within handle_message. Safe unguarded: handle_message calls for one
	// instance are strictly serialized by its own receive loop.
	corrID string

	sub *bus.Subscription
}

func (i *Instance) currentCorrelationID() string {
	if i.corrID != "" {
		return i.corrID
	}
	return uuid.NewString()
}

// Instantiate compiles (if needed) and instantiates componentBytes as a new
// sandbox instance bound to scope, calls its "new" export with config, and
// announces ActorReady on the bus.
func (h *Host) Instantiate(
	ctx context.Context,
	actorID string,
	scope fabscope.Scope,
	componentHash string,
	componentBytes []byte,
	config *structpb.Struct,
) (*Instance, error) {

	compiled, err := h.compile(ctx, componentHash, componentBytes)
	if err != nil {
		return nil, &InstantiationError{ActorID: actorID, Reason: err.Error()}
	}

	instanceName := fmt.Sprintf("%s/%s", scope, actorID)

	modCfg := wazero.NewModuleConfig().WithName(instanceName)
	mod, err := h.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return nil, &InstantiationError{ActorID: actorID, Reason: err.Error()}
	}

	inst := &Instance{
		host:      h,
		mod:       mod,
		actorID:   actorID,
		scope:     scope,
		resources: newResourceTable(),
	}

	h.registerInstance(instanceName, inst)

	// Subscribe before announcing readiness, not after: the coordinator
	// may broadcast AllActorsReady the moment it observes this instance's
	// ActorReady, and AllActorsReady itself carries no replay guarantee.
	// Subscribing first closes that race without changing any observable
	// ordering downstream of it.
	inst.sub = h.bus.Subscribe(scope, instanceName)

	cfgBytes, err := protoStructToJSON(config)
	if err != nil {
		inst.sub.Unsubscribe()
		h.unregisterInstance(instanceName)
		_ = mod.Close(ctx)
		return nil, &InstantiationError{ActorID: actorID, Reason: err.Error()}
	}

	handle, err := inst.callNew(ctx, scope, cfgBytes)
	if err != nil {
		inst.sub.Unsubscribe()
		h.unregisterInstance(instanceName)
		_ = mod.Close(ctx)
		return nil, &InstantiationError{ActorID: actorID, Reason: err.Error()}
	}
	inst.handle = handle

	readyEnv, err := envelope.New(actorID, scope, "", envelope.ActorReady{})
	if err != nil {
		return nil, err
	}
	h.bus.PublishLogged(ctx, readyEnv)

	return inst, nil
}

func (i *Instance) callNew(ctx context.Context, scope fabscope.Scope, cfgJSON []byte) (uint32, error) {
	newFn := i.mod.ExportedFunction("new")
	if newFn == nil {
		return 0, fmt.Errorf("guest does not export \"new\"")
	}

	scopePtr, scopeLen, err := writeMemory(ctx, i.mod, []byte(scope.String()))
	if err != nil {
		return 0, err
	}

	cfgPtr, cfgLen, err := writeMemory(ctx, i.mod, cfgJSON)
	if err != nil {
		return 0, err
	}

	results, err := newFn.Call(ctx,
		uint64(scopePtr), uint64(scopeLen), uint64(cfgPtr), uint64(cfgLen),
	)
	if err != nil {
		return 0, &TrapError{ActorID: i.actorID, Export: "new", Reason: err.Error()}
	}
	if len(results) != 1 {
		return 0, fmt.Errorf("guest \"new\" returned %d results, want 1", len(results))
	}

	return uint32(results[0]), nil
}

// Run drives the receive loop, over the subscription established at
// Instantiate time, until an Exit envelope destined for this instance's
// scope (or a global shutdown from the root scope) is observed, then
// destructs the instance. It blocks until the loop exits or ctx is
// cancelled.
func (i *Instance) Run(ctx context.Context) {
	defer i.sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			i.destruct(context.Background())
			return

		case env, ok := <-i.sub.Envelopes():
			if !ok {
				i.destruct(context.Background())
				return
			}

			if i.isExitFor(env) {
				i.destruct(ctx)
				return
			}

			i.dispatch(ctx, env)
		}
	}
}

func (i *Instance) isExitFor(env envelope.Envelope) bool {
	if env.MessageType != envelope.MessageTypeOf[envelope.Exit]() {
		return false
	}

	return env.FromScope == i.scope || env.FromScope == fabscope.Root
}

// dispatch invokes handle_message for one envelope, recovering from any
// guest trap so a crashing instance never affects its peers.
func (i *Instance) dispatch(ctx context.Context, env envelope.Envelope) {
	i.corrID = env.ID
	defer func() { i.corrID = "" }()

	if err := i.callHandleMessage(ctx, env); err != nil {
		log.ErrorS(ctx, "sandbox trapped handling message",
			"actor_id", i.actorID, "scope", i.scope,
			"message_type", env.MessageType, "err", err)

		notif, nerr := envelope.New(i.actorID, i.scope, env.ID, envelope.UserNotification{
			Level:   envelope.LevelError,
			Title:   "actor handler failed",
			Message: err.Error(),
			Source:  i.actorID,
		})
		if nerr == nil {
			i.host.bus.PublishLogged(ctx, notif)
		}
	}
}

func (i *Instance) callHandleMessage(ctx context.Context, env envelope.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TrapError{ActorID: i.actorID, Export: "handle_message", Reason: fmt.Sprint(r)}
		}
	}()

	handleFn := i.mod.ExportedFunction("handle_message")
	if handleFn == nil {
		return fmt.Errorf("guest does not export \"handle_message\"")
	}

	envJSON, jerr := json.Marshal(env)
	if jerr != nil {
		return jerr
	}

	envPtr, envLen, werr := writeMemory(ctx, i.mod, envJSON)
	if werr != nil {
		return werr
	}

	_, callErr := handleFn.Call(ctx, uint64(i.handle), uint64(envPtr), uint64(envLen))
	if callErr != nil {
		return &TrapError{ActorID: i.actorID, Export: "handle_message", Reason: callErr.Error()}
	}

	return nil
}

// Close tears down an instance that was successfully instantiated but never
// started its receive loop - used to unwind a scope whose spawn aborted
// partway through, where the remaining instances never reached Run.
func (i *Instance) Close(ctx context.Context) {
	i.destruct(ctx)
}

// destruct calls the guest's destructor export, releases every outstanding
// scoped host-capability acquisition, and closes the guest module.
func (i *Instance) destruct(ctx context.Context) {
	if destructorFn := i.mod.ExportedFunction("destructor"); destructorFn != nil {
		if _, err := destructorFn.Call(ctx, uint64(i.handle)); err != nil {
			log.WarnS(ctx, "destructor trapped",
				"actor_id", i.actorID, "scope", i.scope, "err", err)
		}
	}

	i.resources.releaseAll()

	instanceName := fmt.Sprintf("%s/%s", i.scope, i.actorID)
	i.host.unregisterInstance(instanceName)

	if err := i.mod.Close(ctx); err != nil {
		log.WarnS(ctx, "closing sandbox module",
			"actor_id", i.actorID, "scope", i.scope, "err", err)
	}
}

// protoStructToJSON serializes a config tree to the JSON bytes the "new"
// export receives, matching the "serialized_config" shape the lifecycle
// section describes.
func protoStructToJSON(s *structpb.Struct) ([]byte, error) {
	if s == nil {
		return []byte("{}"), nil
	}

	return json.Marshal(s.AsMap())
}
