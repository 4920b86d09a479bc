package manifest

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ManifestFileName is the fixed file name every actor source tree must
// carry at its root.
const ManifestFileName = "Wasmind.toml"

// ParseManifest decodes manifest TOML bytes.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// LoadManifest reads and parses a manifest file from disk.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	return ParseManifest(data)
}

// ParseRuntimeConfig decodes runtime configuration TOML bytes. Sections this
// type does not declare (e.g. an LLM-proxy config block) are ignored by the
// decoder rather than rejected.
func ParseRuntimeConfig(data []byte) (*RuntimeConfig, error) {
	var cfg RuntimeConfig
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing runtime config: %w", err)
	}

	return &cfg, nil
}

// LoadRuntimeConfig reads and parses a runtime configuration file from disk.
func LoadRuntimeConfig(path string) (*RuntimeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading runtime config %s: %w", path, err)
	}

	return ParseRuntimeConfig(data)
}
