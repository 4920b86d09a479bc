// Package coordinator implements the Coordinator & Spawner: the single
// actor that owns scope lifecycle, the cross-scope readiness barrier, and
// replay of configuration-shaping broadcasts into newly-ready scopes.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/wasmind-run/fabric/internal/baselib/actor"
	"github.com/wasmind-run/fabric/internal/bus"
	"github.com/wasmind-run/fabric/internal/envelope"
	"github.com/wasmind-run/fabric/internal/fabscope"
	"github.com/wasmind-run/fabric/internal/resolve"
	"github.com/wasmind-run/fabric/internal/sandbox"
)

// shutdownDrain is how long the Coordinator keeps the bus-observation loop
// alive after a root-scope Exit before declaring the process done, giving
// any last UserNotification or logging envelope a chance to be observed.
const shutdownDrain = 200 * time.Millisecond

// Coordinator is the Actor[CoordinatorCommand, CoordinatorResult] behavior
// driving scope lifecycle: spawning, the readiness barrier, replay, and
// scoped or global teardown. Every field below is mutated only from inside
// Receive, which the actor engine calls strictly sequentially - no mutex is
// layered on top of the Coordinator's own state, by construction.
type Coordinator struct {
	resolved map[string]resolve.ResolvedActor
	host     *sandbox.Host
	bus      *bus.Bus
	tree     *fabscope.Tree

	// scopeTracking records, per scope, the actor ids expected to reach
	// ActorReady before that scope is considered fully up.
	scopeTracking map[fabscope.Scope]map[string]struct{}

	// readyActors records, per scope, the actor ids that have already
	// announced ActorReady.
	readyActors map[fabscope.Scope]map[string]struct{}

	// instances tracks every running sandbox instance by scope. Kept for
	// liveness/introspection; teardown itself is self-driven - each
	// instance's own receive loop observes Exit and destructs itself.
	instances map[fabscope.Scope][]*sandbox.Instance

	// replayLog holds every envelope observed on the bus with the
	// replayable convention set, in publish order, delivered unchanged
	// into a scope the moment that scope first becomes fully ready - and
	// into that scope alone, via PublishToScope.
	replayLog []envelope.Envelope

	ref actor.ActorRef[CoordinatorCommand, CoordinatorResult]

	shutdown     chan struct{}
	shutdownOnce sync.Once

	observeWg sync.WaitGroup
}

// NewCoordinator builds a Coordinator over the resolved actor set, bound to
// host for instantiation, b for message delivery, and tree for scope
// ancestry bookkeeping.
func NewCoordinator(
	resolved map[string]resolve.ResolvedActor,
	host *sandbox.Host,
	b *bus.Bus,
	tree *fabscope.Tree,
) *Coordinator {

	return &Coordinator{
		resolved:      resolved,
		host:          host,
		bus:           b,
		tree:          tree,
		scopeTracking: make(map[fabscope.Scope]map[string]struct{}),
		readyActors:   make(map[fabscope.Scope]map[string]struct{}),
		instances:     make(map[fabscope.Scope][]*sandbox.Instance),
		shutdown:      make(chan struct{}),
	}
}

// SetHost binds the sandbox host used to instantiate actors. Constructing a
// Host requires a SpawnFunc that closes over the Coordinator's own Ask
// method, so the daemon entrypoint builds the Coordinator first, starts it
// to obtain that reference, builds the Host, and wires it back in here
// before the first spawn command is sent.
func (c *Coordinator) SetHost(host *sandbox.Host) {
	c.host = host
}

// Done closes once a root-scope Exit has been observed and the shutdown
// drain has elapsed. The daemon entrypoint selects on this to know when to
// begin process teardown.
func (c *Coordinator) Done() <-chan struct{} {
	return c.shutdown
}

// Start launches the underlying actor and the bus-observation loop that
// feeds ActorReady, Exit, and replayable envelopes back into it, returning
// a reference operators and the sandbox capability bindings can send
// commands to.
func (c *Coordinator) Start(ctx context.Context) actor.ActorRef[CoordinatorCommand, CoordinatorResult] {
	a := actor.NewActor(actor.ActorConfig[CoordinatorCommand, CoordinatorResult]{
		ID:          "coordinator",
		Behavior:    c,
		MailboxSize: 256,
	})
	a.Start()
	c.ref = a.Ref()

	c.observeWg.Add(1)
	go c.observeBus(ctx, a.TellRef())

	return c.ref
}

// observeBus subscribes to the bus for the Coordinator's lifetime and
// forwards every envelope into its own mailbox as an envelopeObservedCmd,
// so readiness bookkeeping, replay stashing, and teardown are mutations of
// the same single-threaded state as any operator command.
func (c *Coordinator) observeBus(ctx context.Context, ref actor.TellOnlyRef[CoordinatorCommand]) {
	defer c.observeWg.Done()

	sub := c.bus.Subscribe(fabscope.Scope(""), "coordinator")
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return

		case env, ok := <-sub.Envelopes():
			if !ok {
				return
			}
			ref.Tell(ctx, envelopeObservedCmd{env: env})
		}
	}
}

// Receive implements actor.ActorBehavior.
func (c *Coordinator) Receive(
	ctx context.Context, msg CoordinatorCommand,
) fn.Result[CoordinatorResult] {

	switch m := msg.(type) {
	case StartRootCmd:
		scope, err := c.startRoot(ctx, m)
		if err != nil {
			return fn.Err[CoordinatorResult](err)
		}
		return fn.Ok[CoordinatorResult](ScopeResult{Scope: scope})

	case SpawnScopeCmd:
		scope, err := c.spawnScope(ctx, m)
		if err != nil {
			return fn.Err[CoordinatorResult](err)
		}
		return fn.Ok[CoordinatorResult](ScopeResult{Scope: scope})

	case RequestExitCmd:
		if err := c.requestExit(ctx, m.Scope); err != nil {
			return fn.Err[CoordinatorResult](err)
		}
		return fn.Ok[CoordinatorResult](emptyResult{})

	case LivenessCmd:
		return fn.Ok[CoordinatorResult](c.liveness())

	case ScopeSnapshotCmd:
		return fn.Ok[CoordinatorResult](c.scopeSnapshot())

	case envelopeObservedCmd:
		c.observeEnvelope(ctx, m.env)
		return fn.Ok[CoordinatorResult](emptyResult{})

	default:
		return fn.Err[CoordinatorResult](fmt.Errorf(
			"unknown coordinator command: %T", msg,
		))
	}
}

// startRoot computes the root actor set - the explicit starting actors
// union every resolved actor with auto_spawn set, closed under
// required_spawn_with - and spawns it at the root scope.
func (c *Coordinator) startRoot(
	ctx context.Context, m StartRootCmd,
) (fabscope.Scope, error) {

	names := toSet(m.StartingActors)
	for logicalName, ra := range c.resolved {
		if ra.AutoSpawn {
			names[logicalName] = struct{}{}
		}
	}

	if len(names) == 0 {
		return "", &NoStartingActorsError{}
	}

	closed, err := c.closeRequiredSpawnWith(names)
	if err != nil {
		return "", err
	}

	return c.doSpawn(ctx, setToSlice(closed), fabscope.Root, m.RootName, "")
}

// spawnScope validates and closes m.LogicalNames under required_spawn_with,
// then spawns them into m.Scope (freshly allocated if empty).
func (c *Coordinator) spawnScope(
	ctx context.Context, m SpawnScopeCmd,
) (fabscope.Scope, error) {

	closed, err := c.closeRequiredSpawnWith(toSet(m.LogicalNames))
	if err != nil {
		return "", err
	}

	return c.doSpawn(ctx, setToSlice(closed), m.Scope, m.Name, m.Parent)
}

// closeRequiredSpawnWith expands names to a fixed point over each resolved
// actor's RequiredSpawnWith, failing if any name is not in the resolved set.
func (c *Coordinator) closeRequiredSpawnWith(
	names map[string]struct{},
) (map[string]struct{}, error) {

	closed := make(map[string]struct{}, len(names))
	queue := make([]string, 0, len(names))
	for n := range names {
		closed[n] = struct{}{}
		queue = append(queue, n)
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		ra, ok := c.resolved[name]
		if !ok {
			return nil, &sandbox.UnknownActorError{LogicalName: name}
		}

		for _, req := range ra.RequiredSpawnWith {
			if _, ok := closed[req]; !ok {
				closed[req] = struct{}{}
				queue = append(queue, req)
			}
		}
	}

	return closed, nil
}

// doSpawn instantiates one sandbox instance per logical name into scope
// (minting a fresh scope if empty), records scope tracking and ancestry,
// launches each instance's receive loop, and announces AgentSpawned.
// Spawning a scope is all-or-nothing: the first instantiation failure aborts
// and tears down every instance already created for this attempt, and
// publishes an error UserNotification naming the failing actor.
func (c *Coordinator) doSpawn(
	ctx context.Context,
	logicalNames []string,
	scope fabscope.Scope,
	name string,
	parent fabscope.Scope,
) (fabscope.Scope, error) {

	var err error
	if scope == "" {
		scope, err = fabscope.New()
		if err != nil {
			return "", err
		}
	}

	if parent != "" {
		c.tree.Add(scope, parent)
	}

	expected := make(map[string]struct{}, len(logicalNames))
	instances := make([]*sandbox.Instance, 0, len(logicalNames))

	for _, logicalName := range logicalNames {
		ra, ok := c.resolved[logicalName]
		if !ok {
			c.abortSpawn(ctx, scope, instances)
			return "", &sandbox.UnknownActorError{LogicalName: logicalName}
		}

		inst, err := c.host.Instantiate(
			ctx, ra.ActorID, scope, ra.Source.Hash(), ra.ComponentBytes,
			ra.EffectiveConfig,
		)
		if err != nil {
			c.abortSpawn(ctx, scope, instances)
			notif, nerr := envelope.New("coordinator", scope, "", envelope.UserNotification{
				Level:   envelope.LevelError,
				Title:   "scope spawn failed",
				Message: err.Error(),
				Source:  logicalName,
			})
			if nerr == nil {
				c.bus.PublishLogged(ctx, notif)
			}
			return "", &ScopeSpawnError{
				Scope:       scope.String(),
				LogicalName: logicalName,
				Reason:      err.Error(),
			}
		}

		instances = append(instances, inst)
		expected[ra.ActorID] = struct{}{}
	}

	c.scopeTracking[scope] = expected
	c.readyActors[scope] = make(map[string]struct{})
	c.instances[scope] = instances

	for _, inst := range instances {
		inst := inst
		go inst.Run(ctx)
	}

	spawnedEnv, encErr := envelope.New("coordinator", scope, "", envelope.AgentSpawned{
		AgentID:     scope.String(),
		ParentAgent: parent.String(),
		Actors:      logicalNames,
		Name:        name,
	})
	if encErr == nil {
		c.bus.PublishLogged(ctx, spawnedEnv)
	}

	log.InfoS(ctx, "spawned scope",
		"scope", scope, "actors", logicalNames, "parent", parent)

	return scope, nil
}

// abortSpawn closes every instance already instantiated for a spawn attempt
// that failed partway through, and drops any scope bookkeeping begun for it.
func (c *Coordinator) abortSpawn(
	ctx context.Context, scope fabscope.Scope, instances []*sandbox.Instance,
) {

	for _, inst := range instances {
		inst.Close(ctx)
	}

	delete(c.scopeTracking, scope)
	delete(c.readyActors, scope)
	delete(c.instances, scope)
	c.tree.Remove(scope)
}

// requestExit publishes an Exit envelope into scope. Every instance running
// in that scope (or, for the root scope, every instance anywhere) observes
// it on its own receive loop and tears itself down.
func (c *Coordinator) requestExit(ctx context.Context, scope fabscope.Scope) error {
	if scope != fabscope.Root {
		if _, ok := c.scopeTracking[scope]; !ok {
			return &UnknownScopeError{Scope: scope.String()}
		}
	}

	exitEnv, err := envelope.New("coordinator", scope, "", envelope.Exit{})
	if err != nil {
		return err
	}
	c.bus.PublishLogged(ctx, exitEnv)

	return nil
}

// liveness reports whether the Coordinator's actor is still processing
// commands and how many scopes it currently tracks.
func (c *Coordinator) liveness() LivenessResult {
	return LivenessResult{Alive: true, ScopeCount: len(c.scopeTracking)}
}

// scopeSnapshot reports the current scope -> expected actor id membership.
func (c *Coordinator) scopeSnapshot() ScopeSnapshotResult {
	snap := make(map[fabscope.Scope][]string, len(c.scopeTracking))
	for scope, names := range c.scopeTracking {
		snap[scope] = setToSlice(names)
	}
	return ScopeSnapshotResult{Scopes: snap}
}

// observeEnvelope is called once per envelope seen on the bus, in arrival
// order, from within the Coordinator's own mailbox.
func (c *Coordinator) observeEnvelope(ctx context.Context, env envelope.Envelope) {
	if isReplayableType(env.MessageType) {
		c.replayLog = append(c.replayLog, env)
	}

	switch env.MessageType {
	case envelope.MessageTypeOf[envelope.ActorReady]():
		c.handleActorReady(ctx, env)
	case envelope.MessageTypeOf[envelope.Exit]():
		c.handleExit(ctx, env)
	}
}

// handleActorReady records a single ActorReady sighting. Once every actor
// expected in that scope has reported ready, it broadcasts AllActorsReady
// and then delivers the entire replay log unchanged into that scope only,
// via PublishToScope - never a global rebroadcast, which would hand every
// already-ready scope a duplicate it never asked for.
func (c *Coordinator) handleActorReady(ctx context.Context, env envelope.Envelope) {
	scope := env.FromScope

	expected, ok := c.scopeTracking[scope]
	if !ok {
		return
	}

	ready := c.readyActors[scope]
	if ready == nil {
		ready = make(map[string]struct{})
		c.readyActors[scope] = ready
	}
	ready[env.FromActorID] = struct{}{}

	if len(ready) < len(expected) {
		return
	}

	allReadyEnv, err := envelope.New("coordinator", scope, "", envelope.AllActorsReady{})
	if err != nil {
		log.ErrorS(ctx, "encoding AllActorsReady", "scope", scope, "err", err)
		return
	}
	c.bus.PublishLogged(ctx, allReadyEnv)

	log.InfoS(ctx, "scope fully ready, replaying log",
		"scope", scope, "replay_count", len(c.replayLog))

	for _, replay := range c.replayLog {
		c.bus.PublishToScopeLogged(ctx, scope, replay)
	}
}

// handleExit reacts to an observed Exit envelope: from the root scope it
// begins the shutdown drain, from any other scope it drops that scope's
// bookkeeping. Teardown of the scope's instances is self-driven - each
// instance's own receive loop observes the same Exit and destructs itself.
func (c *Coordinator) handleExit(ctx context.Context, env envelope.Envelope) {
	scope := env.FromScope

	if scope == fabscope.Root {
		log.InfoS(ctx, "root exit observed, draining before shutdown")
		go c.finishShutdown(ctx)
		return
	}

	delete(c.scopeTracking, scope)
	delete(c.readyActors, scope)
	delete(c.instances, scope)
	c.tree.Remove(scope)
}

func (c *Coordinator) finishShutdown(ctx context.Context) {
	select {
	case <-time.After(shutdownDrain):
	case <-ctx.Done():
	}
	c.shutdownOnce.Do(func() { close(c.shutdown) })
}

// isReplayableType reports whether messageType is, by convention, stashed
// into the replay log as it is observed.
func isReplayableType(messageType string) bool {
	switch messageType {
	case envelope.MessageTypeOf[envelope.SystemPromptContribution](),
		envelope.MessageTypeOf[envelope.BaseUrlUpdate]():
		return true
	default:
		return false
	}
}

func toSet(names []string) map[string]struct{} {
	s := make(map[string]struct{}, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func setToSlice(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	return out
}

var _ actor.ActorBehavior[CoordinatorCommand, CoordinatorResult] = (*Coordinator)(nil)
