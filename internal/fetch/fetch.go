// Package fetch implements the Source Acquirer: turning an actor source
// descriptor into a local directory containing a manifest and a built
// sandbox component binary, honoring the content-addressed cache.
package fetch

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/wasmind-run/fabric/internal/cache"
)

// componentFileName is the conventional name of the built sandbox component
// artifact at the root of a source tree.
const componentFileName = "component.wasm"

// manifestFileName is the conventional name of the manifest file at the
// root of a source tree.
const manifestFileName = "Wasmind.toml"

// Result is the outcome of a full Fetch: a local directory plus the
// manifest and component bytes read from it.
type Result struct {
	BuildDir       string
	ManifestBytes  []byte
	ComponentBytes []byte
}

// Fetcher acquires actor sources into the content-addressed cache.
type Fetcher struct {
	cache *cache.Cache

	// gitCloneDir is the directory git sources are cloned into, one
	// subdirectory per cache hash. Set by New from its caller; the daemon
	// passes a "git" subdirectory of the cache root.
	gitCloneDir string
}

// New returns a Fetcher backed by c, cloning git sources under
// gitCloneDir.
func New(c *cache.Cache, gitCloneDir string) *Fetcher {
	return &Fetcher{cache: c, gitCloneDir: gitCloneDir}
}

// FetchManifestOnly returns just the manifest bytes for descr, avoiding a
// full fetch (and, for git sources, avoiding any clone) whenever the cache
// already has the manifest for this exact source.
func (f *Fetcher) FetchManifestOnly(
	ctx context.Context, descr cache.SourceDescriptor,
) ([]byte, error) {

	hash := descr.Hash()

	if f.cache.HasManifest(ctx, hash) {
		data, err := f.cache.Dir.ReadManifest(hash)
		if err == nil {
			return data, nil
		}
	}

	if !descr.IsGit() {
		return f.readPathManifest(descr)
	}

	// Manifest not cached for a git source: this is the one case where a
	// manifest-only query still requires a clone, since there is no
	// other way to read the manifest out of a ref that was never
	// fetched.
	dir, err := f.cloneGit(ctx, descr, hash)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if err != nil {
		return nil, &MissingManifestError{
			Source: descr.String(),
			Path:   filepath.Join(dir, manifestFileName),
		}
	}

	if err := f.cache.RecordManifest(ctx, hash, descr, data); err != nil {
		return nil, err
	}

	return data, nil
}

// Fetch performs a full fetch: acquire the source, read its manifest, and
// read or locate its built component binary.
func (f *Fetcher) Fetch(
	ctx context.Context, descr cache.SourceDescriptor,
) (*Result, error) {

	hash := descr.Hash()

	var buildDir string
	if descr.IsGit() {
		dir, err := f.cloneGit(ctx, descr, hash)
		if err != nil {
			return nil, err
		}
		buildDir = dir
	} else {
		buildDir = descr.Path
		if _, err := os.Stat(buildDir); err != nil {
			return nil, &InvalidSourceError{
				Reason: "path source does not exist: " + buildDir,
			}
		}
	}

	manifestBytes, err := os.ReadFile(filepath.Join(buildDir, manifestFileName))
	if err != nil {
		return nil, &MissingManifestError{
			Source: descr.String(),
			Path:   filepath.Join(buildDir, manifestFileName),
		}
	}

	componentBytes, err := os.ReadFile(filepath.Join(buildDir, componentFileName))
	if err != nil {
		return nil, &BuildFailedError{
			Source: descr.String(),
			Reason: "no built component artifact at " +
				filepath.Join(buildDir, componentFileName),
		}
	}

	if err := f.cache.RecordManifest(ctx, hash, descr, manifestBytes); err != nil {
		return nil, err
	}
	if err := f.cache.RecordComponent(ctx, hash, descr, componentBytes); err != nil {
		return nil, err
	}

	return &Result{
		BuildDir:       buildDir,
		ManifestBytes:  manifestBytes,
		ComponentBytes: componentBytes,
	}, nil
}

func (f *Fetcher) readPathManifest(descr cache.SourceDescriptor) ([]byte, error) {
	path := filepath.Join(descr.Path, manifestFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &MissingManifestError{
			Source: descr.String(),
			Path:   path,
		}
	}

	return data, nil
}

// cloneGit clones descr's git source into this fetcher's clone directory,
// keyed by hash so repeated fetches of the same source reuse the checkout.
func (f *Fetcher) cloneGit(
	ctx context.Context, descr cache.SourceDescriptor, hash string,
) (string, error) {

	dest := filepath.Join(f.gitCloneDir, hash)
	if _, err := os.Stat(dest); err == nil {
		return f.subDir(dest, descr), nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", &FetchFailedError{Source: descr.String(), Reason: err.Error()}
	}

	args := []string{"clone", "--depth", "1"}
	if descr.GitRefKind == cache.GitRefBranch || descr.GitRefKind == cache.GitRefTag {
		args = append(args, "--branch", descr.GitRefValue)
	}
	args = append(args, descr.GitURL, dest)

	log.DebugS(ctx, "Cloning git source", "url", descr.GitURL, "dest", dest)

	cmd := exec.CommandContext(ctx, "git", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", &FetchFailedError{
			Source: descr.String(),
			Reason: string(out),
		}
	}

	if descr.GitRefKind == cache.GitRefRev {
		cmd := exec.CommandContext(ctx, "git", "-C", dest, "checkout", descr.GitRefValue)
		if out, err := cmd.CombinedOutput(); err != nil {
			return "", &FetchFailedError{
				Source: descr.String(),
				Reason: string(out),
			}
		}
	}

	return f.subDir(dest, descr), nil
}

func (f *Fetcher) subDir(dest string, descr cache.SourceDescriptor) string {
	if descr.SubDir == "" {
		return dest
	}

	return filepath.Join(dest, descr.SubDir)
}
