package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wasmind-run/fabric/internal/envelope"
	"github.com/wasmind-run/fabric/internal/fabscope"
)

func testEnvelope(t *testing.T, msg envelope.TypedMessage) envelope.Envelope {
	t.Helper()

	e, err := envelope.New("t:test", fabscope.Root, "", msg)
	require.NoError(t, err)

	return e
}

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	t.Parallel()

	b := New(4)
	sub1 := b.Subscribe(fabscope.Root, "sub1")
	sub2 := b.Subscribe(fabscope.Root, "sub2")

	e := testEnvelope(t, envelope.ActorReady{})
	b.Publish(context.Background(), e, nil)

	select {
	case got := <-sub1.Envelopes():
		require.Equal(t, e.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("sub1 did not receive envelope")
	}

	select {
	case got := <-sub2.Envelopes():
		require.Equal(t, e.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("sub2 did not receive envelope")
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	t.Parallel()

	b := New(1)
	sub := b.Subscribe(fabscope.Root, "sub")

	e := testEnvelope(t, envelope.ActorReady{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			b.Publish(context.Background(), e, nil)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}

	require.Greater(t, sub.Lagged(), uint64(0))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	b := New(4)
	sub := b.Subscribe(fabscope.Root, "sub")
	require.Equal(t, 1, b.SubscriberCount())

	sub.Unsubscribe()
	require.Equal(t, 0, b.SubscriberCount())

	_, ok := <-sub.Envelopes()
	require.False(t, ok)
}

func TestUnsubscribeIdempotent(t *testing.T) {
	t.Parallel()

	b := New(4)
	sub := b.Subscribe(fabscope.Root, "sub")

	sub.Unsubscribe()
	require.NotPanics(t, sub.Unsubscribe)
}

func TestLagObserverInvokedOnDrop(t *testing.T) {
	t.Parallel()

	b := New(1)
	_ = b.Subscribe(fabscope.Root, "sub")

	e := testEnvelope(t, envelope.ActorReady{})

	b.Publish(context.Background(), e, nil)

	var drops int
	b.Publish(context.Background(), e, func(_ *Subscription, _ envelope.Envelope, dropped uint64) {
		drops++
		require.Equal(t, uint64(1), dropped)
	})

	require.Equal(t, 1, drops)
}

func TestLagObserverIdentifiesLaggingSubscriber(t *testing.T) {
	t.Parallel()

	b := New(1)
	_ = b.Subscribe(fabscope.Root, "worker-7")

	e := testEnvelope(t, envelope.ActorReady{})
	b.Publish(context.Background(), e, nil)

	var gotLabel string
	b.Publish(context.Background(), e, func(sub *Subscription, _ envelope.Envelope, _ uint64) {
		gotLabel = sub.Label()
	})

	require.Equal(t, "worker-7", gotLabel)
}

func TestPublishToScopeTargetsOnlyMatchingSubscribers(t *testing.T) {
	t.Parallel()

	var scopeA, scopeB fabscope.Scope = "AAAAAA", "BBBBBB"

	b := New(4)
	subA := b.Subscribe(scopeA, "scopeA/actor")
	subB := b.Subscribe(scopeB, "scopeB/actor")
	subGlobal := b.Subscribe(fabscope.Scope(""), "observer")

	e := testEnvelope(t, envelope.SystemPromptContribution{})
	b.PublishToScope(context.Background(), scopeA, e, nil)

	select {
	case got := <-subA.Envelopes():
		require.Equal(t, e.ID, got.ID)
	default:
		t.Fatal("scopeA subscriber did not receive the targeted replay")
	}

	select {
	case <-subB.Envelopes():
		t.Fatal("scopeB subscriber must not receive a replay targeted at scopeA")
	default:
	}

	select {
	case <-subGlobal.Envelopes():
		t.Fatal("a global observer must not receive a scope-targeted replay")
	default:
	}
}
