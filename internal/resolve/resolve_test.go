package resolve

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmind-run/fabric/internal/cache"
	"github.com/wasmind-run/fabric/internal/fetch"
)

func newTestResolver(t *testing.T) (*Resolver, string) {
	t.Helper()

	dir := t.TempDir()
	c, err := cache.New(filepath.Join(dir, "store"), cache.Config{
		IndexFileName: filepath.Join(dir, "index.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close()) })

	f := fetch.New(c, filepath.Join(dir, "git"))

	return New(f), filepath.Join(dir, "actors")
}

func writeActor(t *testing.T, root string, logicalDir string, manifestTOML string) string {
	t.Helper()

	dir := filepath.Join(root, logicalDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "Wasmind.toml"), []byte(manifestTOML), 0o644,
	))

	return dir
}

func TestResolveSingleActorNoDeps(t *testing.T) {
	t.Parallel()

	r, root := newTestResolver(t)
	dir := writeActor(t, root, "leaf", `actor_id = "t:leaf"`+"\n"+`auto_spawn = true`+"\n")

	userActors := []UserActorSpec{
		{LogicalName: "leaf", Source: cache.PathSource(dir)},
	}

	result, err := r.Resolve(context.Background(), userActors, nil)
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Equal(t, "t:leaf", result["leaf"].ActorID)
	require.True(t, result["leaf"].AutoSpawn)
	require.False(t, result["leaf"].IsDependency)
}

func TestResolveTransitiveDependency(t *testing.T) {
	t.Parallel()

	r, root := newTestResolver(t)
	childDir := writeActor(t, root, "child", `actor_id = "t:child"`+"\n")
	parentManifest := `actor_id = "t:parent"
[dependencies.child]
source = { path = "` + childDir + `" }
`
	parentDir := writeActor(t, root, "parent", parentManifest)

	userActors := []UserActorSpec{
		{LogicalName: "parent", Source: cache.PathSource(parentDir)},
	}

	result, err := r.Resolve(context.Background(), userActors, nil)
	require.NoError(t, err)
	require.Len(t, result, 2)
	require.False(t, result["parent"].IsDependency)
	require.True(t, result["child"].IsDependency)
}

func TestResolveSharedDependencyIsDedupedOnce(t *testing.T) {
	t.Parallel()

	r, root := newTestResolver(t)
	sharedDir := writeActor(t, root, "shared", `actor_id = "t:shared"`+"\n")

	aManifest := `actor_id = "t:a"
[dependencies.shared]
source = { path = "` + sharedDir + `" }
`
	bManifest := `actor_id = "t:b"
[dependencies.shared]
source = { path = "` + sharedDir + `" }
`
	aDir := writeActor(t, root, "a", aManifest)
	bDir := writeActor(t, root, "b", bManifest)

	userActors := []UserActorSpec{
		{LogicalName: "a", Source: cache.PathSource(aDir)},
		{LogicalName: "b", Source: cache.PathSource(bDir)},
	}

	result, err := r.Resolve(context.Background(), userActors, nil)
	require.NoError(t, err)
	require.Len(t, result, 3)
	require.Equal(t, "t:shared", result["shared"].ActorID)
}

func TestResolveConflictingSourcesForSameLogicalName(t *testing.T) {
	t.Parallel()

	r, root := newTestResolver(t)
	dir1 := writeActor(t, root, "one", `actor_id = "t:one"`+"\n")
	dir2 := writeActor(t, root, "two", `actor_id = "t:two"`+"\n")

	aManifest := `actor_id = "t:a"
[dependencies.shared]
source = { path = "` + dir1 + `" }
`
	bManifest := `actor_id = "t:b"
[dependencies.shared]
source = { path = "` + dir2 + `" }
`
	aDir := writeActor(t, root, "a", aManifest)
	bDir := writeActor(t, root, "b", bManifest)

	userActors := []UserActorSpec{
		{LogicalName: "a", Source: cache.PathSource(aDir)},
		{LogicalName: "b", Source: cache.PathSource(bDir)},
	}

	_, err := r.Resolve(context.Background(), userActors, nil)
	require.Error(t, err)

	var conflict *ConflictingActorError
	require.ErrorAs(t, err, &conflict)
}

func TestResolveCircularDependency(t *testing.T) {
	t.Parallel()

	r, root := newTestResolver(t)

	aDir := filepath.Join(root, "a")
	bDir := filepath.Join(root, "b")
	require.NoError(t, os.MkdirAll(aDir, 0o755))
	require.NoError(t, os.MkdirAll(bDir, 0o755))

	aManifest := `actor_id = "t:a"
[dependencies.b]
source = { path = "` + bDir + `" }
`
	bManifest := `actor_id = "t:b"
[dependencies.a]
source = { path = "` + aDir + `" }
`
	require.NoError(t, os.WriteFile(filepath.Join(aDir, "Wasmind.toml"), []byte(aManifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(bDir, "Wasmind.toml"), []byte(bManifest), 0o644))

	userActors := []UserActorSpec{
		{LogicalName: "a", Source: cache.PathSource(aDir)},
	}

	_, err := r.Resolve(context.Background(), userActors, nil)
	require.Error(t, err)

	var cycle *CircularDependencyError
	require.ErrorAs(t, err, &cycle)
}

func TestResolveDuplicateUserActor(t *testing.T) {
	t.Parallel()

	r, root := newTestResolver(t)
	dir := writeActor(t, root, "leaf", `actor_id = "t:leaf"`+"\n")

	userActors := []UserActorSpec{
		{LogicalName: "leaf", Source: cache.PathSource(dir)},
		{LogicalName: "leaf", Source: cache.PathSource(dir)},
	}

	_, err := r.Resolve(context.Background(), userActors, nil)
	require.Error(t, err)

	var dup *DuplicateUserActorError
	require.ErrorAs(t, err, &dup)
}

func TestResolveOverrideAppliesToTransitiveDependency(t *testing.T) {
	t.Parallel()

	r, root := newTestResolver(t)
	originalDir := writeActor(t, root, "original", `actor_id = "t:original"`+"\n")
	replacementDir := writeActor(t, root, "replacement",
		`actor_id = "t:replacement"`+"\n")

	parentManifest := `actor_id = "t:parent"
[dependencies.helper]
source = { path = "` + originalDir + `" }
`
	parentDir := writeActor(t, root, "parent", parentManifest)

	replacementDescr := cache.PathSource(replacementDir)

	userActors := []UserActorSpec{
		{LogicalName: "parent", Source: cache.PathSource(parentDir)},
	}
	overrides := map[string]OverrideSpec{
		"helper": {LogicalName: "helper", Source: &replacementDescr},
	}

	result, err := r.Resolve(context.Background(), userActors, overrides)
	require.NoError(t, err)
	require.Equal(t, "t:replacement", result["helper"].ActorID)
}

func TestResolveOverrideForUnknownActorIsNonFatal(t *testing.T) {
	t.Parallel()

	r, root := newTestResolver(t)
	dir := writeActor(t, root, "leaf", `actor_id = "t:leaf"`+"\n")

	userActors := []UserActorSpec{
		{LogicalName: "leaf", Source: cache.PathSource(dir)},
	}
	overrides := map[string]OverrideSpec{
		"never-referenced": {LogicalName: "never-referenced"},
	}

	result, err := r.Resolve(context.Background(), userActors, overrides)
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Equal(t, "t:leaf", result["leaf"].ActorID)
}

func TestResolveEffectiveConfigPrecedence(t *testing.T) {
	t.Parallel()

	r, root := newTestResolver(t)
	manifestTOML := `actor_id = "t:leaf"
[default_config]
level = "info"
nested = { a = 1, b = 2 }
`
	dir := writeActor(t, root, "leaf", manifestTOML)

	userActors := []UserActorSpec{
		{
			LogicalName: "leaf",
			Source:      cache.PathSource(dir),
			Config: map[string]any{
				"nested": map[string]any{"b": 20},
			},
		},
	}
	overrides := map[string]OverrideSpec{
		"leaf": {LogicalName: "leaf", Config: map[string]any{"level": "debug"}},
	}

	result, err := r.Resolve(context.Background(), userActors, overrides)
	require.NoError(t, err)

	cfg := result["leaf"].EffectiveConfig.AsMap()
	require.Equal(t, "debug", cfg["level"])

	nested := cfg["nested"].(map[string]any)
	require.Equal(t, float64(1), nested["a"])
	require.Equal(t, float64(20), nested["b"])
}

func TestResolveRequiredSpawnWithPrecedence(t *testing.T) {
	t.Parallel()

	r, root := newTestResolver(t)
	manifestTOML := `actor_id = "t:leaf"
required_spawn_with = ["default-peer"]
`
	dir := writeActor(t, root, "leaf", manifestTOML)

	userActors := []UserActorSpec{
		{LogicalName: "leaf", Source: cache.PathSource(dir)},
	}
	overrides := map[string]OverrideSpec{
		"leaf": {LogicalName: "leaf", RequiredSpawnWith: []string{"override-peer"}},
	}

	result, err := r.Resolve(context.Background(), userActors, overrides)
	require.NoError(t, err)
	require.Equal(t, []string{"override-peer"}, result["leaf"].RequiredSpawnWith)
}

func TestMaterializePopulatesComponentBytes(t *testing.T) {
	t.Parallel()

	r, root := newTestResolver(t)
	dir := writeActor(t, root, "leaf", `actor_id = "t:leaf"`+"\n")
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "component.wasm"), []byte("\x00asm"), 0o644,
	))

	userActors := []UserActorSpec{
		{LogicalName: "leaf", Source: cache.PathSource(dir)},
	}

	result, err := r.Resolve(context.Background(), userActors, nil)
	require.NoError(t, err)

	require.NoError(t, r.Materialize(context.Background(), result))
	require.Equal(t, "\x00asm", string(result["leaf"].ComponentBytes))
}
