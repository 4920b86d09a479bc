package coordinator

import (
	"context"
	"fmt"

	"github.com/wasmind-run/fabric/internal/fabscope"
)

// SpawnAgent implements sandbox.SpawnFunc, letting a guest's spawn_agent
// capability call delegate scope creation back to the Coordinator's single
// serialized mailbox. It blocks until the new scope has been fully
// instantiated (readiness is still asynchronous - only construction is
// awaited here).
func (c *Coordinator) SpawnAgent(
	ctx context.Context,
	parentScope fabscope.Scope,
	actorLogicalNames []string,
	name string,
) (fabscope.Scope, error) {

	result, err := c.ref.Ask(ctx, SpawnScopeCmd{
		LogicalNames: actorLogicalNames,
		Name:         name,
		Parent:       parentScope,
	}).Await(ctx).Unpack()
	if err != nil {
		return "", err
	}

	scoped, ok := result.(ScopeResult)
	if !ok {
		return "", fmt.Errorf("spawn_agent: unexpected result type %T", result)
	}

	return scoped.Scope, nil
}
