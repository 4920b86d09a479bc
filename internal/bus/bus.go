// Package bus implements the single, process-wide broadcast fabric every
// Sandbox Host, the Coordinator, and external observability tools publish to
// and subscribe from.
package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/wasmind-run/fabric/internal/envelope"
	"github.com/wasmind-run/fabric/internal/fabscope"
)

// DefaultCapacity is the default per-subscriber buffer size.
const DefaultCapacity = 1024

// Bus is a multi-producer/multi-consumer broadcast channel. Every publish is
// fanned out to every current subscriber with a non-blocking send; a
// subscriber that cannot keep up loses messages and is charged a lag count,
// but publishing itself never blocks on a slow reader.
type Bus struct {
	capacity int

	mu   sync.RWMutex
	subs map[uint64]*Subscription

	nextID atomic.Uint64
}

// New creates a Bus with the given per-subscriber buffer capacity. A
// non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Bus{
		capacity: capacity,
		subs:     make(map[uint64]*Subscription),
	}
}

// Subscription is a single subscriber's view of the bus: a buffered channel
// of envelopes plus a running count of messages it has lost to
// backpressure. scope and label identify the subscriber - scope for
// scope-targeted delivery (see PublishToScope), label so a lag warning can
// name which subscriber is falling behind.
type Subscription struct {
	id    uint64
	bus   *Bus
	ch    chan envelope.Envelope
	scope fabscope.Scope
	label string

	lagged atomic.Uint64
}

// Label returns the identity this subscription was registered under.
func (s *Subscription) Label() string {
	return s.label
}

// Envelopes returns the channel this subscription receives envelopes on. It
// is closed when Unsubscribe is called.
func (s *Subscription) Envelopes() <-chan envelope.Envelope {
	return s.ch
}

// Lagged returns the number of envelopes this subscription has dropped due
// to a full buffer since it subscribed.
func (s *Subscription) Lagged() uint64 {
	return s.lagged.Load()
}

// Unsubscribe removes this subscription from the bus and closes its
// channel. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if _, ok := s.bus.subs[s.id]; !ok {
		return
	}

	delete(s.bus.subs, s.id)
	close(s.ch)
}

// Subscribe registers a new subscriber identified by scope and label. Every
// envelope published after this call returns is delivered to the returned
// Subscription, in publish order, until it either lags past its buffer or
// calls Unsubscribe. scope is the subscriber's home scope, used by
// PublishToScope to address delivery; callers with no single home scope
// (the Coordinator's own bus-observation loop, the bus-tail websocket
// handler) pass the zero Scope, which never matches a real one. label
// identifies the subscriber in lag warnings - an actor instance passes its
// "scope/actor_id" name, other subscribers a short fixed string.
func (b *Bus) Subscribe(scope fabscope.Scope, label string) *Subscription {
	sub := &Subscription{
		id:    b.nextID.Add(1),
		bus:   b,
		ch:    make(chan envelope.Envelope, b.capacity),
		scope: scope,
		label: label,
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()

	return sub
}

// LagObserver is notified whenever a subscriber drops a message to
// backpressure. It is invoked synchronously from Publish, so implementations
// must not block.
type LagObserver func(sub *Subscription, e envelope.Envelope, droppedCount uint64)

// Publish delivers e to every current subscriber using a non-blocking send.
// A subscriber whose buffer is full drops the message and its lag counter is
// incremented; publish itself never blocks. If obs is non-nil it is called
// once per dropped delivery.
func (b *Bus) Publish(_ context.Context, e envelope.Envelope, obs LagObserver) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		deliverOne(sub, e, obs)
	}
}

// PublishToScope delivers e only to subscribers registered under the given
// scope, using the same non-blocking-send and lag-counting semantics as
// Publish. It exists for the Coordinator's replay delivery: replayed
// envelopes must reach only the newly-ready scope's own instances, never a
// global rebroadcast that would hand every already-ready scope a duplicate
// it never asked for.
func (b *Bus) PublishToScope(_ context.Context, scope fabscope.Scope, e envelope.Envelope, obs LagObserver) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.scope != scope {
			continue
		}
		deliverOne(sub, e, obs)
	}
}

func deliverOne(sub *Subscription, e envelope.Envelope, obs LagObserver) {
	select {
	case sub.ch <- e:
	default:
		dropped := sub.lagged.Add(1)
		if obs != nil {
			obs(sub, e, dropped)
		}
	}
}

// lagWarning is the shared lag observer used by both PublishLogged and
// PublishToScopeLogged: it names the lagging subscriber, the message that
// was dropped, and the running drop count, per the backpressure policy -
// missed messages are not recovered, only reported.
func lagWarning(ctx context.Context) LagObserver {
	return func(sub *Subscription, e envelope.Envelope, dropped uint64) {
		log.WarnS(ctx, "Bus subscriber lagging, message dropped",
			"subscriber", sub.label,
			"message_type", e.MessageType,
			"from_scope", e.FromScope,
			"dropped_count", dropped)
	}
}

// PublishLogged is Publish with the default lag observer.
func (b *Bus) PublishLogged(ctx context.Context, e envelope.Envelope) {
	b.Publish(ctx, e, lagWarning(ctx))
}

// PublishToScopeLogged is PublishToScope with the default lag observer.
func (b *Bus) PublishToScopeLogged(ctx context.Context, scope fabscope.Scope, e envelope.Envelope) {
	b.PublishToScope(ctx, scope, e, lagWarning(ctx))
}

// SubscriberCount returns the number of currently registered subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}
