package envelope

// Replayable reports whether values of T are, by convention, published with
// the replayable flag set when broadcast. This is consulted by callers that
// build a publish request; it is not encoded on the wire envelope itself,
// since replay tracking is the coordinator's concern, not the bus's.
func Replayable[T TypedMessage]() bool {
	switch MessageTypeOf[T]() {
	case MessageTypeOf[SystemPromptContribution](), MessageTypeOf[BaseUrlUpdate]():
		return true
	default:
		return false
	}
}
