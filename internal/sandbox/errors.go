package sandbox

import "fmt"

// InstantiationError is returned when a sandbox component fails to compile
// or instantiate.
type InstantiationError struct {
	ActorID string
	Reason  string
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("instantiating sandbox for %q: %s", e.ActorID, e.Reason)
}

// TrapError wraps a recovered guest panic/trap observed while invoking a
// guest export.
type TrapError struct {
	ActorID string
	Export  string
	Reason  string
}

func (e *TrapError) Error() string {
	return fmt.Sprintf(
		"sandbox %q trapped in %s: %s", e.ActorID, e.Export, e.Reason,
	)
}

// UnknownActorError is returned when spawn_agent names a logical actor not
// present in the resolved set passed to the coordinator.
type UnknownActorError struct {
	LogicalName string
}

func (e *UnknownActorError) Error() string {
	return fmt.Sprintf("spawn_agent: unknown actor %q", e.LogicalName)
}
