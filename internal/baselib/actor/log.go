package actor

import (
	"github.com/btcsuite/btclog/v2"
)

// Subsystem is the logging subsystem tag used when this package's logger is
// attached to a fan-out handler.
const Subsystem = "ACTR"

// log is the package-level logger used throughout the actor engine. It
// defaults to a no-op logger so the package is silent until the host
// application wires up a real backend via UseLogger.
var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-wide logger used by the actor engine. Callers
// that want visibility into actor lifecycle events (registration, shutdown,
// mailbox backpressure) should call this once at startup, typically with a
// subsystem-tagged logger obtained from a shared btclog.Handler.
func UseLogger(logger btclog.Logger) {
	log = logger
}
