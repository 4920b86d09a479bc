package resolve

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wasmind-run/fabric/internal/cache"
	"github.com/wasmind-run/fabric/internal/fetch"
	"github.com/wasmind-run/fabric/internal/manifest"
)

// Resolver computes the closed dependency set for a list of user-declared
// actors, applying overrides uniformly at every logical name regardless of
// how deep a dependency chain reaches it.
type Resolver struct {
	fetcher *fetch.Fetcher
}

// New returns a Resolver that acquires manifests and components through f.
func New(f *fetch.Fetcher) *Resolver {
	return &Resolver{fetcher: f}
}

// frame carries the per-recursion effective inputs contributed by whatever
// referenced this logical name: a user actor entry, or a dependency entry
// in some other manifest.
type frame struct {
	source            cache.SourceDescriptor
	config            map[string]any
	autoSpawn         *bool
	requiredSpawnWith []string
	isDependency      bool
}

// Resolve walks userActors and their transitive dependencies to a fixed
// point, returning one ResolvedActor per distinct logical name. Overrides
// are consulted at every logical name encountered, whether user-declared or
// only reachable transitively.
func (r *Resolver) Resolve(
	ctx context.Context,
	userActors []UserActorSpec,
	overrides map[string]OverrideSpec,
) (map[string]ResolvedActor, error) {

	seen := make(map[string]bool, len(userActors))
	for _, ua := range userActors {
		if seen[ua.LogicalName] {
			return nil, &DuplicateUserActorError{LogicalName: ua.LogicalName}
		}
		seen[ua.LogicalName] = true
	}

	resolved := make(map[string]*ResolvedActor)

	for _, ua := range userActors {
		f := frame{
			source:            ua.Source,
			config:            ua.Config,
			autoSpawn:         ua.AutoSpawn,
			requiredSpawnWith: ua.RequiredSpawnWith,
			isDependency:      false,
		}

		if err := r.resolveOne(ctx, ua.LogicalName, f, overrides, resolved, nil); err != nil {
			return nil, err
		}
	}

	out := make(map[string]ResolvedActor, len(resolved))
	for name, ra := range resolved {
		out[name] = *ra
	}

	for name := range overrides {
		if _, ok := resolved[name]; !ok {
			log.WarnS(ctx, "override does not match any actor encountered "+
				"during resolution", "logical_name", name)
		}
	}

	return out, nil
}

// resolveOne resolves a single logical name, recursing into its manifest's
// dependencies. path is the chain of logical names currently being resolved,
// used to detect cycles.
func (r *Resolver) resolveOne(
	ctx context.Context,
	name string,
	f frame,
	overrides map[string]OverrideSpec,
	resolved map[string]*ResolvedActor,
	path []string,
) error {

	for _, p := range path {
		if p == name {
			return &CircularDependencyError{Path: append(append([]string{}, path...), name)}
		}
	}

	descr := f.source
	refConfig := f.config
	refAutoSpawn := f.autoSpawn
	refRequiredSpawnWith := f.requiredSpawnWith

	var overrideConfig map[string]any
	var overrideAutoSpawn *bool
	var overrideRequiredSpawnWith []string

	if ov, ok := overrides[name]; ok {
		if ov.Source != nil {
			descr = *ov.Source
		}
		overrideConfig = ov.Config
		overrideAutoSpawn = ov.AutoSpawn
		overrideRequiredSpawnWith = ov.RequiredSpawnWith
	}

	if existing, ok := resolved[name]; ok {
		if existing.Source.Hash() != descr.Hash() {
			return &ConflictingActorError{
				LogicalName: name,
				Sources:     []string{existing.Source.String(), descr.String()},
			}
		}

		// Same logical name reached again through an identical source:
		// nothing further to do, the dependency graph converges here.
		return nil
	}

	log.DebugS(ctx, "Resolving actor", "logical_name", name, "source", descr.String())

	manifestBytes, err := r.fetcher.FetchManifestOnly(ctx, descr)
	if err != nil {
		return &MissingManifestError{LogicalName: name, Err: err}
	}

	m, err := manifest.ParseManifest(manifestBytes)
	if err != nil {
		return &MissingManifestError{LogicalName: name, Err: err}
	}

	defaultCfg, err := manifest.ToStruct(m.DefaultConfig)
	if err != nil {
		return err
	}
	refCfg, err := manifest.ToStruct(refConfig)
	if err != nil {
		return err
	}
	overCfg, err := manifest.ToStruct(overrideConfig)
	if err != nil {
		return err
	}

	effectiveAutoSpawn := m.AutoSpawn
	if refAutoSpawn != nil {
		effectiveAutoSpawn = *refAutoSpawn
	}
	if overrideAutoSpawn != nil {
		effectiveAutoSpawn = *overrideAutoSpawn
	}

	effectiveRequiredSpawnWith := m.RequiredSpawnWith
	if len(refRequiredSpawnWith) > 0 {
		effectiveRequiredSpawnWith = refRequiredSpawnWith
	}
	if len(overrideRequiredSpawnWith) > 0 {
		effectiveRequiredSpawnWith = overrideRequiredSpawnWith
	}

	ra := &ResolvedActor{
		LogicalName:       name,
		ActorID:           m.ActorID,
		Source:            descr,
		EffectiveConfig:   manifest.MergeChain(defaultCfg, refCfg, overCfg),
		AutoSpawn:         effectiveAutoSpawn,
		RequiredSpawnWith: effectiveRequiredSpawnWith,
		IsDependency:      f.isDependency,
	}
	resolved[name] = ra

	childPath := append(append([]string{}, path...), name)

	for depName, dep := range m.Dependencies {
		depDescr, err := dep.Source.Descriptor()
		if err != nil {
			return &MissingManifestError{LogicalName: depName, Err: err}
		}

		depFrame := frame{
			source:       depDescr,
			config:       dep.Config,
			autoSpawn:    dep.AutoSpawn,
			isDependency: true,
		}

		if err := r.resolveOne(ctx, depName, depFrame, overrides, resolved, childPath); err != nil {
			return err
		}
	}

	return nil
}

// Materialize performs a full fetch for every resolved actor concurrently,
// populating ComponentBytes and BuildDir so the result is ready to hand to
// the sandbox host. It mutates resolved in place; the first fetch failure
// cancels the rest.
func (r *Resolver) Materialize(ctx context.Context, resolved map[string]ResolvedActor) error {
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for name, ra := range resolved {
		name, ra := name, ra

		g.Go(func() error {
			result, err := r.fetcher.Fetch(gctx, ra.Source)
			if err != nil {
				return &MissingManifestError{LogicalName: name, Err: err}
			}

			ra.BuildDir = result.BuildDir
			ra.ComponentBytes = result.ComponentBytes

			mu.Lock()
			resolved[name] = ra
			mu.Unlock()

			return nil
		})
	}

	return g.Wait()
}

// FromRuntimeConfig translates a parsed runtime configuration into the
// resolver's input shapes.
func FromRuntimeConfig(cfg *manifest.RuntimeConfig) ([]UserActorSpec, map[string]OverrideSpec, error) {
	userActors := make([]UserActorSpec, 0, len(cfg.Actors))

	for _, ua := range cfg.Actors {
		descr, err := ua.Source.Descriptor()
		if err != nil {
			return nil, nil, err
		}

		userActors = append(userActors, UserActorSpec{
			LogicalName:       ua.LogicalName,
			Source:            descr,
			Config:            ua.Config,
			AutoSpawn:         ua.AutoSpawn,
			RequiredSpawnWith: ua.RequiredSpawnWith,
		})
	}

	overrides := make(map[string]OverrideSpec, len(cfg.ActorOverrides))
	for _, ov := range cfg.ActorOverrides {
		spec := OverrideSpec{
			LogicalName:       ov.LogicalName,
			Config:            ov.Config,
			AutoSpawn:         ov.AutoSpawn,
			RequiredSpawnWith: ov.RequiredSpawnWith,
		}

		if ov.Source != nil {
			descr, err := ov.Source.Descriptor()
			if err != nil {
				return nil, nil, err
			}
			spec.Source = &descr
		}

		overrides[ov.LogicalName] = spec
	}

	return userActors, overrides, nil
}
