// Package manifest parses actor manifests (Wasmind.toml) and runtime
// configuration trees, and implements the deep-merge rule that produces an
// actor's effective configuration.
package manifest

import (
	"fmt"

	"github.com/wasmind-run/fabric/internal/cache"
)

// SourceSpec is the TOML shape of an ActorSource tagged union: exactly one
// of Path or Git is set.
type SourceSpec struct {
	Path string `toml:"path"`

	Git    string `toml:"git"`
	Branch string `toml:"branch"`
	Tag    string `toml:"tag"`
	Rev    string `toml:"rev"`
	SubDir string `toml:"sub_dir"`
}

// IsZero reports whether the spec carries neither a path nor a git source.
func (s SourceSpec) IsZero() bool {
	return s.Path == "" && s.Git == ""
}

// Descriptor converts this TOML-level source spec into the canonical,
// hashable cache.SourceDescriptor.
func (s SourceSpec) Descriptor() (cache.SourceDescriptor, error) {
	switch {
	case s.Path != "" && s.Git != "":
		return cache.SourceDescriptor{}, fmt.Errorf(
			"source specifies both path and git",
		)

	case s.Path != "":
		return cache.PathSource(s.Path), nil

	case s.Git != "":
		kind, value, err := s.gitRef()
		if err != nil {
			return cache.SourceDescriptor{}, err
		}

		return cache.GitSource(s.Git, kind, value, s.SubDir), nil

	default:
		return cache.SourceDescriptor{}, fmt.Errorf(
			"source specifies neither path nor git",
		)
	}
}

func (s SourceSpec) gitRef() (cache.GitRefKind, string, error) {
	set := 0
	var kind cache.GitRefKind
	var value string

	if s.Branch != "" {
		set++
		kind, value = cache.GitRefBranch, s.Branch
	}
	if s.Tag != "" {
		set++
		kind, value = cache.GitRefTag, s.Tag
	}
	if s.Rev != "" {
		set++
		kind, value = cache.GitRefRev, s.Rev
	}

	if set != 1 {
		return 0, "", fmt.Errorf(
			"git source must specify exactly one of branch, tag, rev (got %d)",
			set,
		)
	}

	return kind, value, nil
}

// DependencyEntry is one entry in a manifest's [dependencies.<logical_name>]
// table.
type DependencyEntry struct {
	Source   SourceSpec     `toml:"source"`
	Config   map[string]any `toml:"config"`
	AutoSpawn *bool         `toml:"auto_spawn"`
}

// Manifest is the parsed form of Wasmind.toml.
type Manifest struct {
	ActorID           string                     `toml:"actor_id"`
	AutoSpawn         bool                       `toml:"auto_spawn"`
	RequiredSpawnWith []string                   `toml:"required_spawn_with"`
	DefaultConfig     map[string]any             `toml:"default_config"`
	Dependencies      map[string]DependencyEntry `toml:"dependencies"`
}

// Validate checks the structural requirements a manifest must satisfy
// independent of resolution context.
func (m *Manifest) Validate() error {
	if m.ActorID == "" {
		return fmt.Errorf("manifest missing required field actor_id")
	}

	for name, dep := range m.Dependencies {
		if dep.Source.IsZero() {
			return fmt.Errorf(
				"dependency %q declares no source", name,
			)
		}
	}

	return nil
}
