// Package resolve implements the Dependency Resolver: computing the closed
// set of ResolvedActors needed to satisfy a user actor list plus their
// transitive dependencies.
package resolve

import (
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/wasmind-run/fabric/internal/cache"
)

// UserActorSpec is one user-declared actor, the seed of the resolver's
// work-list.
type UserActorSpec struct {
	LogicalName       string
	Source            cache.SourceDescriptor
	Config            map[string]any
	AutoSpawn         *bool
	RequiredSpawnWith []string
}

// OverrideSpec is one entry from actor_overrides, keyed by logical name. It
// may apply to a user-declared actor or to one only reachable transitively.
type OverrideSpec struct {
	LogicalName       string
	Source            *cache.SourceDescriptor
	Config            map[string]any
	AutoSpawn         *bool
	RequiredSpawnWith []string
}

// ResolvedActor is a fully materialized actor, ready to instantiate.
type ResolvedActor struct {
	LogicalName       string
	ActorID           string
	Source            cache.SourceDescriptor
	BuildDir          string
	ComponentBytes    []byte
	EffectiveConfig   *structpb.Struct
	AutoSpawn         bool
	RequiredSpawnWith []string
	IsDependency      bool
}
