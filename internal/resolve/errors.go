package resolve

import (
	"fmt"
	"strings"
)

// MissingManifestError wraps a manifest-load failure with the logical name
// under resolution, for diagnosis.
type MissingManifestError struct {
	LogicalName string
	Err         error
}

func (e *MissingManifestError) Error() string {
	return fmt.Sprintf("missing manifest for %q: %v", e.LogicalName, e.Err)
}

func (e *MissingManifestError) Unwrap() error { return e.Err }

// ConflictingActorError is returned when one logical name is reachable
// through two different, inconsistent sources.
type ConflictingActorError struct {
	LogicalName string
	Sources     []string
}

func (e *ConflictingActorError) Error() string {
	return fmt.Sprintf(
		"logical name %q resolves to conflicting sources: %s",
		e.LogicalName, strings.Join(e.Sources, " vs "),
	)
}

// CircularDependencyError is returned when a dependency chain cycles back
// on itself.
type CircularDependencyError struct {
	Path []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency: %s", strings.Join(e.Path, " -> "))
}

// DuplicateUserActorError is returned when two user-declared actors share a
// logical name.
type DuplicateUserActorError struct {
	LogicalName string
}

func (e *DuplicateUserActorError) Error() string {
	return fmt.Sprintf(
		"logical name %q declared by more than one user actor",
		e.LogicalName,
	)
}
