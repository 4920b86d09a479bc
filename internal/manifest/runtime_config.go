package manifest

// UserActor is one entry of a runtime config's [[actors]] list: a
// user-declared actor, not reached transitively through a dependency.
type UserActor struct {
	LogicalName       string         `toml:"logical_name"`
	Name              string         `toml:"name"`
	Source            SourceSpec     `toml:"source"`
	Config            map[string]any `toml:"config"`
	AutoSpawn         *bool          `toml:"auto_spawn"`
	RequiredSpawnWith []string       `toml:"required_spawn_with"`
}

// OverrideEntry is one entry of a runtime config's [[actor_overrides]]
// list. It may target any logical name, including one only reachable
// transitively through another actor's dependencies.
type OverrideEntry struct {
	LogicalName       string         `toml:"logical_name"`
	Source            *SourceSpec    `toml:"source"`
	Config            map[string]any `toml:"config"`
	AutoSpawn         *bool          `toml:"auto_spawn"`
	RequiredSpawnWith []string       `toml:"required_spawn_with"`
}

// RuntimeConfig is the parsed form of the top-level runtime configuration
// tree: which actors to start, and overrides to apply during resolution.
// Unrecognized top-level sections (e.g. LLM-proxy configuration) are not
// represented here; they are ignored because this type is decoded with
// toml.Decode, which skips keys the struct does not declare rather than
// enforcing a strict schema.
type RuntimeConfig struct {
	StartingActors []string        `toml:"starting_actors"`
	Actors         []UserActor     `toml:"actors"`
	ActorOverrides []OverrideEntry `toml:"actor_overrides"`
}

// OverrideFor returns the override entry for logicalName, if any.
func (c *RuntimeConfig) OverrideFor(logicalName string) (OverrideEntry, bool) {
	for _, o := range c.ActorOverrides {
		if o.LogicalName == logicalName {
			return o, true
		}
	}

	return OverrideEntry{}, false
}
