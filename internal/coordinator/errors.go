package coordinator

import "fmt"

// NoStartingActorsError is returned by StartRootCmd when neither explicit
// starting actors nor any auto_spawn resolved actor produced a non-empty
// root set.
type NoStartingActorsError struct{}

func (e *NoStartingActorsError) Error() string {
	return "no starting actors: nothing explicit and nothing auto_spawn"
}

// ScopeSpawnError wraps a sandbox instantiation failure encountered while
// spawning a scope. A scope spawn is all-or-nothing: any member failing to
// instantiate aborts the whole scope.
type ScopeSpawnError struct {
	Scope       string
	LogicalName string
	Reason      string
}

func (e *ScopeSpawnError) Error() string {
	return fmt.Sprintf(
		"spawning scope %s: actor %q: %s", e.Scope, e.LogicalName, e.Reason,
	)
}

// UnknownScopeError is returned by RequestExitCmd when asked to tear down a
// scope the Coordinator never allocated.
type UnknownScopeError struct {
	Scope string
}

func (e *UnknownScopeError) Error() string {
	return fmt.Sprintf("unknown scope %q", e.Scope)
}
