package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wasmind-run/fabric/internal/bus"
	"github.com/wasmind-run/fabric/internal/envelope"
	"github.com/wasmind-run/fabric/internal/fabscope"
	"github.com/wasmind-run/fabric/internal/resolve"
	"github.com/wasmind-run/fabric/internal/sandbox"
)

func newTestCoordinator(resolved map[string]resolve.ResolvedActor) (*Coordinator, *bus.Bus) {
	b := bus.New(64)
	tree := fabscope.NewTree()
	return NewCoordinator(resolved, nil, b, tree), b
}

func TestCloseRequiredSpawnWithExpandsTransitively(t *testing.T) {
	t.Parallel()

	resolved := map[string]resolve.ResolvedActor{
		"a": {LogicalName: "a", ActorID: "a", RequiredSpawnWith: []string{"b"}},
		"b": {LogicalName: "b", ActorID: "b", RequiredSpawnWith: []string{"c"}},
		"c": {LogicalName: "c", ActorID: "c"},
	}
	c, _ := newTestCoordinator(resolved)

	closed, err := c.closeRequiredSpawnWith(toSet([]string{"a"}))
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b", "c"}, setToSlice(closed))
}

func TestCloseRequiredSpawnWithUnknownActorErrors(t *testing.T) {
	t.Parallel()

	c, _ := newTestCoordinator(map[string]resolve.ResolvedActor{})

	_, err := c.closeRequiredSpawnWith(toSet([]string{"ghost"}))
	require.Error(t, err)

	var unknown *sandbox.UnknownActorError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "ghost", unknown.LogicalName)
}

func TestIsReplayableType(t *testing.T) {
	t.Parallel()

	require.True(t, isReplayableType(envelope.MessageTypeOf[envelope.SystemPromptContribution]()))
	require.True(t, isReplayableType(envelope.MessageTypeOf[envelope.BaseUrlUpdate]()))
	require.False(t, isReplayableType(envelope.MessageTypeOf[envelope.ActorReady]()))
	require.False(t, isReplayableType(envelope.MessageTypeOf[envelope.Exit]()))
}

func TestHandleActorReadyBroadcastsAllReadyOnceEveryExpectedActorIsReady(t *testing.T) {
	t.Parallel()

	c, b := newTestCoordinator(map[string]resolve.ResolvedActor{})
	scope := fabscope.Scope("AAAAAA")

	c.scopeTracking[scope] = toSet([]string{"actor-a", "actor-b"})
	c.readyActors[scope] = make(map[string]struct{})

	sub := b.Subscribe(scope, "test-subscriber")
	defer sub.Unsubscribe()

	ctx := context.Background()

	readyOne, err := envelope.New("actor-a", scope, "", envelope.ActorReady{})
	require.NoError(t, err)
	c.handleActorReady(ctx, readyOne)

	select {
	case <-sub.Envelopes():
		t.Fatal("AllActorsReady published before every expected actor reported ready")
	case <-time.After(20 * time.Millisecond):
	}

	readyTwo, err := envelope.New("actor-b", scope, "", envelope.ActorReady{})
	require.NoError(t, err)
	c.handleActorReady(ctx, readyTwo)

	select {
	case env := <-sub.Envelopes():
		require.Equal(t, envelope.MessageTypeOf[envelope.AllActorsReady](), env.MessageType)
		require.Equal(t, scope, env.FromScope)
	case <-time.After(time.Second):
		t.Fatal("expected AllActorsReady to be published")
	}
}

func TestHandleActorReadyReplaysStashedMessages(t *testing.T) {
	t.Parallel()

	c, b := newTestCoordinator(map[string]resolve.ResolvedActor{})
	scope := fabscope.Scope("BBBBBB")

	c.scopeTracking[scope] = toSet([]string{"only-actor"})
	c.readyActors[scope] = make(map[string]struct{})

	stashed, err := envelope.New("other-scope-actor", fabscope.Root, "",
		envelope.BaseUrlUpdate{BaseURL: "https://example.test"})
	require.NoError(t, err)
	c.replayLog = append(c.replayLog, stashed)

	sub := b.Subscribe(scope, "test-subscriber")
	defer sub.Unsubscribe()

	ctx := context.Background()
	ready, err := envelope.New("only-actor", scope, "", envelope.ActorReady{})
	require.NoError(t, err)
	c.handleActorReady(ctx, ready)

	seenAllReady, seenReplay := false, false
	for i := 0; i < 2; i++ {
		select {
		case env := <-sub.Envelopes():
			switch env.MessageType {
			case envelope.MessageTypeOf[envelope.AllActorsReady]():
				seenAllReady = true
			case envelope.MessageTypeOf[envelope.BaseUrlUpdate]():
				seenReplay = true
			}
		case <-time.After(time.Second):
			t.Fatal("expected both AllActorsReady and the replayed message")
		}
	}

	require.True(t, seenAllReady)
	require.True(t, seenReplay)
}

func TestHandleActorReadyReplayDoesNotReachOtherScopes(t *testing.T) {
	t.Parallel()

	c, b := newTestCoordinator(map[string]resolve.ResolvedActor{})

	alreadyReady := fabscope.Scope("EEEEEE")
	newlyReady := fabscope.Scope("FFFFFF")

	c.scopeTracking[newlyReady] = toSet([]string{"only-actor"})
	c.readyActors[newlyReady] = make(map[string]struct{})

	stashed, err := envelope.New("some-actor", fabscope.Root, "",
		envelope.BaseUrlUpdate{BaseURL: "https://example.test"})
	require.NoError(t, err)
	c.replayLog = append(c.replayLog, stashed)

	// alreadyReadySub models an instance in a scope that became ready
	// earlier and already consumed this replay log entry once.
	alreadyReadySub := b.Subscribe(alreadyReady, "already-ready-actor")
	defer alreadyReadySub.Unsubscribe()

	ready, err := envelope.New("only-actor", newlyReady, "", envelope.ActorReady{})
	require.NoError(t, err)
	c.handleActorReady(context.Background(), ready)

	// AllActorsReady is a bus-wide broadcast and legitimately reaches this
	// subscriber; only the replayed entry must stay out of it.
	timeout := time.After(50 * time.Millisecond)
	for {
		select {
		case env := <-alreadyReadySub.Envelopes():
			if env.MessageType == envelope.MessageTypeOf[envelope.BaseUrlUpdate]() {
				t.Fatalf("already-ready scope must not receive a duplicate replay, got %s", env.MessageType)
			}
		case <-timeout:
			return
		}
	}
}

func TestHandleExitNonRootRemovesScopeBookkeeping(t *testing.T) {
	t.Parallel()

	c, _ := newTestCoordinator(map[string]resolve.ResolvedActor{})
	scope := fabscope.Scope("CCCCCC")

	c.tree.Add(scope, fabscope.Root)
	c.scopeTracking[scope] = toSet([]string{"actor-a"})
	c.readyActors[scope] = make(map[string]struct{})
	c.instances[scope] = nil

	exitEnv, err := envelope.New("coordinator", scope, "", envelope.Exit{})
	require.NoError(t, err)
	c.handleExit(context.Background(), exitEnv)

	require.NotContains(t, c.scopeTracking, scope)
	require.NotContains(t, c.readyActors, scope)
	require.NotContains(t, c.instances, scope)

	_, ok := c.tree.ParentOf(scope)
	require.False(t, ok)

	select {
	case <-c.Done():
		t.Fatal("non-root exit must not trigger process shutdown")
	default:
	}
}

func TestHandleExitRootSchedulesShutdown(t *testing.T) {
	t.Parallel()

	c, _ := newTestCoordinator(map[string]resolve.ResolvedActor{})

	exitEnv, err := envelope.New("coordinator", fabscope.Root, "", envelope.Exit{})
	require.NoError(t, err)
	c.handleExit(context.Background(), exitEnv)

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected Done() to close after the shutdown drain")
	}
}

func TestRequestExitUnknownScopeErrors(t *testing.T) {
	t.Parallel()

	c, _ := newTestCoordinator(map[string]resolve.ResolvedActor{})

	err := c.requestExit(context.Background(), fabscope.Scope("NOPENO"))
	require.Error(t, err)

	var unknown *UnknownScopeError
	require.ErrorAs(t, err, &unknown)
}

func TestRequestExitRootNeedsNoTrackedScope(t *testing.T) {
	t.Parallel()

	c, b := newTestCoordinator(map[string]resolve.ResolvedActor{})
	sub := b.Subscribe(fabscope.Root, "test-subscriber")
	defer sub.Unsubscribe()

	err := c.requestExit(context.Background(), fabscope.Root)
	require.NoError(t, err)

	select {
	case env := <-sub.Envelopes():
		require.Equal(t, envelope.MessageTypeOf[envelope.Exit](), env.MessageType)
		require.True(t, env.FromScope.IsRoot())
	case <-time.After(time.Second):
		t.Fatal("expected Exit to be published")
	}
}

func TestLivenessReportsScopeCount(t *testing.T) {
	t.Parallel()

	c, _ := newTestCoordinator(map[string]resolve.ResolvedActor{})
	c.scopeTracking[fabscope.Root] = toSet([]string{"actor-a"})
	c.scopeTracking[fabscope.Scope("DDDDDD")] = toSet([]string{"actor-b"})

	live := c.liveness()
	require.True(t, live.Alive)
	require.Equal(t, 2, live.ScopeCount)
}

func TestScopeSnapshotListsExpectedActors(t *testing.T) {
	t.Parallel()

	c, _ := newTestCoordinator(map[string]resolve.ResolvedActor{})
	c.scopeTracking[fabscope.Root] = toSet([]string{"actor-a", "actor-b"})

	snap := c.scopeSnapshot()
	require.ElementsMatch(t, []string{"actor-a", "actor-b"}, snap.Scopes[fabscope.Root])
}
