// Package envelope defines the bus message record and the typed message
// catalog carried inside its opaque payload.
package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/wasmind-run/fabric/internal/fabscope"
)

// Envelope is the wire form of a single bus message. The payload is an
// opaque, canonically-serialized encoding of a TypedMessage; MessageType
// names the schema that payload was encoded with.
type Envelope struct {
	// ID is the correlation identifier. It is propagated unchanged across
	// every envelope emitted while handling this one.
	ID string `json:"id"`

	// FromActorID is the ActorId of the instance that published this
	// envelope.
	FromActorID string `json:"from_actor_id"`

	// FromScope is the scope the publishing instance belongs to.
	FromScope fabscope.Scope `json:"from_scope"`

	// MessageType is the fully-qualified dotted schema key identifying
	// how Payload is encoded.
	MessageType string `json:"message_type"`

	// Payload is the canonical serialized form of the typed message.
	Payload []byte `json:"payload"`
}

// TypedMessage is implemented by every member of the message catalog. The
// returned string is the schema key stamped into an envelope's MessageType
// field.
type TypedMessage interface {
	MessageType() string
}

// New encodes msg and wraps it in an Envelope stamped with the given
// publisher identity and correlation id. If correlationID is empty, a fresh
// one is minted - this is the "freshly generated one at root" case the
// broadcast capability falls back to when no envelope is currently being
// handled.
func New(
	fromActorID string,
	fromScope fabscope.Scope,
	correlationID string,
	msg TypedMessage,
) (Envelope, error) {

	payload, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf(
			"encoding %s payload: %w", msg.MessageType(), err,
		)
	}

	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	return Envelope{
		ID:          correlationID,
		FromActorID: fromActorID,
		FromScope:   fromScope,
		MessageType: msg.MessageType(),
		Payload:     payload,
	}, nil
}

// MessageTypeOf returns the canonical schema key for a catalog type without
// requiring an instance.
func MessageTypeOf[T TypedMessage]() string {
	var zero T
	return zero.MessageType()
}

// ParseAs decodes e's payload as T iff e.MessageType matches T's schema key.
// A type mismatch or decode failure both return the zero value and false;
// per the error-handling taxonomy, payload decode failures are silent at
// this layer and left to the caller to treat as "absent".
func ParseAs[T TypedMessage](e Envelope) (T, bool) {
	var zero T
	if e.MessageType != zero.MessageType() {
		return zero, false
	}

	var msg T
	if err := json.Unmarshal(e.Payload, &msg); err != nil {
		return zero, false
	}

	return msg, true
}
