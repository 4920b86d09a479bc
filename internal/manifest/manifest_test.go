package manifest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wasmind-run/fabric/internal/cache"
)

const sampleManifest = `
actor_id = "fabric:logger"
auto_spawn = true
required_spawn_with = ["helper"]

[default_config]
level = "info"

[default_config.nested]
retries = 3

[dependencies.helper]
source = { path = "../helper" }

[dependencies.helper.config]
mode = "fast"
`

func TestParseManifest(t *testing.T) {
	t.Parallel()

	m, err := ParseManifest([]byte(sampleManifest))
	require.NoError(t, err)
	require.Equal(t, "fabric:logger", m.ActorID)
	require.True(t, m.AutoSpawn)
	require.Equal(t, []string{"helper"}, m.RequiredSpawnWith)
	require.Equal(t, "info", m.DefaultConfig["level"])

	dep, ok := m.Dependencies["helper"]
	require.True(t, ok)
	require.Equal(t, "../helper", dep.Source.Path)
}

func TestParseManifestRejectsMissingActorID(t *testing.T) {
	t.Parallel()

	_, err := ParseManifest([]byte(`auto_spawn = true`))
	require.Error(t, err)
}

func TestSourceSpecDescriptorPath(t *testing.T) {
	t.Parallel()

	spec := SourceSpec{Path: "/a/b"}
	descr, err := spec.Descriptor()
	require.NoError(t, err)
	require.False(t, descr.IsGit())
	require.Equal(t, cache.PathSource("/a/b").Hash(), descr.Hash())
}

func TestSourceSpecDescriptorGit(t *testing.T) {
	t.Parallel()

	spec := SourceSpec{Git: "https://example.com/x.git", Branch: "main"}
	descr, err := spec.Descriptor()
	require.NoError(t, err)
	require.True(t, descr.IsGit())
}

func TestSourceSpecDescriptorRejectsAmbiguousRef(t *testing.T) {
	t.Parallel()

	spec := SourceSpec{Git: "https://example.com/x.git", Branch: "main", Tag: "v1"}
	_, err := spec.Descriptor()
	require.Error(t, err)
}

func TestSourceSpecDescriptorRejectsBothPathAndGit(t *testing.T) {
	t.Parallel()

	spec := SourceSpec{Path: "/a", Git: "https://example.com/x.git", Branch: "main"}
	_, err := spec.Descriptor()
	require.Error(t, err)
}

func TestParseRuntimeConfig(t *testing.T) {
	t.Parallel()

	data := []byte(`
starting_actors = ["planner"]

[[actors]]
logical_name = "planner"
name = "Planner"
source = { path = "./planner" }

[[actor_overrides]]
logical_name = "helper"
auto_spawn = false
`)

	cfg, err := ParseRuntimeConfig(data)
	require.NoError(t, err)
	require.Equal(t, []string{"planner"}, cfg.StartingActors)
	require.Len(t, cfg.Actors, 1)
	require.Equal(t, "planner", cfg.Actors[0].LogicalName)

	override, ok := cfg.OverrideFor("helper")
	require.True(t, ok)
	require.NotNil(t, override.AutoSpawn)
	require.False(t, *override.AutoSpawn)

	_, ok = cfg.OverrideFor("nonexistent")
	require.False(t, ok)
}
