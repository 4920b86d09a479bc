package healthsrv

import (
	"github.com/btcsuite/btclog/v2"
)

// Subsystem is the logging subsystem tag used when this package's logger is
// attached to a fan-out handler.
const Subsystem = "HLTH"

var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-wide logger used by the health service.
func UseLogger(logger btclog.Logger) {
	log = logger
}
