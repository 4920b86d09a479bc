package coordinator

import (
	"github.com/wasmind-run/fabric/internal/baselib/actor"
	"github.com/wasmind-run/fabric/internal/envelope"
	"github.com/wasmind-run/fabric/internal/fabscope"
)

// CoordinatorCommand is the union type for every message the Coordinator
// actor accepts: operator-issued commands from the control surface, and the
// Coordinator's own bus-observation loop feeding ActorReady/Exit sightings
// back through the actor's single mailbox so every state mutation is
// serialized the same way.
type CoordinatorCommand interface {
	actor.Message
	isCoordinatorCommand()
}

// CoordinatorResult is the union type for every response the Coordinator
// actor produces.
type CoordinatorResult interface {
	isCoordinatorResult()
}

func (StartRootCmd) isCoordinatorCommand()       {}
func (SpawnScopeCmd) isCoordinatorCommand()       {}
func (RequestExitCmd) isCoordinatorCommand()      {}
func (LivenessCmd) isCoordinatorCommand()         {}
func (ScopeSnapshotCmd) isCoordinatorCommand()    {}
func (envelopeObservedCmd) isCoordinatorCommand() {}

func (ScopeResult) isCoordinatorResult()   {}
func (LivenessResult) isCoordinatorResult() {}
func (ScopeSnapshotResult) isCoordinatorResult() {}
func (emptyResult) isCoordinatorResult()   {}

// StartRootCmd computes the root actor set - the explicit starting actors
// union every resolved actor with auto_spawn set, closed under
// required_spawn_with - and spawns it at the root scope.
type StartRootCmd struct {
	actor.BaseMessage

	// StartingActors are the operator-requested logical names to start at
	// the root scope, in addition to whatever auto_spawn resolves to.
	StartingActors []string

	// RootName is the human-readable name recorded for the root scope's
	// AgentSpawned announcement.
	RootName string
}

func (StartRootCmd) MessageType() string { return "StartRootCmd" }

// SpawnScopeCmd allocates (or reuses) a scope, validates logicalNames
// against the resolved set, closes the set under required_spawn_with, and
// launches one sandbox instance per member.
type SpawnScopeCmd struct {
	actor.BaseMessage

	// LogicalNames are the actors to instantiate in the new scope.
	LogicalNames []string

	// Scope, if non-zero, reuses an already-allocated scope rather than
	// minting a fresh one. spawn_agent callbacks always leave this empty.
	Scope fabscope.Scope

	// Name is the human-readable name recorded for the scope's
	// AgentSpawned announcement.
	Name string

	// Parent is the scope that requested this spawn. Root itself has no
	// parent and leaves this empty.
	Parent fabscope.Scope
}

func (SpawnScopeCmd) MessageType() string { return "SpawnScopeCmd" }

// RequestExitCmd asks the Coordinator to publish an Exit envelope for scope.
// Exit from the root scope tears down the whole process; any other scope
// tears down only that scope's instances.
type RequestExitCmd struct {
	actor.BaseMessage

	Scope fabscope.Scope
}

func (RequestExitCmd) MessageType() string { return "RequestExitCmd" }

// LivenessCmd asks whether the Coordinator's run loop is still alive and how
// many scopes it is currently tracking. Used by the gRPC health service.
type LivenessCmd struct {
	actor.BaseMessage
}

func (LivenessCmd) MessageType() string { return "LivenessCmd" }

// ScopeSnapshotCmd asks for the current scope -> expected actor id
// membership, for the control surface's scope listing.
type ScopeSnapshotCmd struct {
	actor.BaseMessage
}

func (ScopeSnapshotCmd) MessageType() string { return "ScopeSnapshotCmd" }

// envelopeObservedCmd is how the Coordinator's bus-observation loop feeds an
// ActorReady or Exit sighting back into the actor's own mailbox, so that
// readiness bookkeeping and scope teardown are mutations of the same
// single-threaded state as every operator command.
type envelopeObservedCmd struct {
	actor.BaseMessage

	env envelope.Envelope
}

func (envelopeObservedCmd) MessageType() string { return "envelopeObservedCmd" }

// ScopeResult carries a single scope, the response to StartRootCmd and
// SpawnScopeCmd.
type ScopeResult struct {
	Scope fabscope.Scope `json:"scope"`
}

// LivenessResult is the response to LivenessCmd.
type LivenessResult struct {
	Alive      bool `json:"alive"`
	ScopeCount int  `json:"scope_count"`
}

// ScopeSnapshotResult is the response to ScopeSnapshotCmd.
type ScopeSnapshotResult struct {
	Scopes map[fabscope.Scope][]string `json:"scopes"`
}

// emptyResult is the response to commands with no meaningful payload, such
// as RequestExitCmd and envelopeObservedCmd.
type emptyResult struct{}
