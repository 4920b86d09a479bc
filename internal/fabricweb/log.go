package fabricweb

import (
	"github.com/btcsuite/btclog/v2"
)

// Subsystem is the logging subsystem tag used when this package's logger is
// attached to a fan-out handler.
const Subsystem = "FWEB"

var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-wide logger used by the control surface.
func UseLogger(logger btclog.Logger) {
	log = logger
}
