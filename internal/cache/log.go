package cache

import "github.com/btcsuite/btclog/v2"

// Subsystem is the logging subsystem tag for the cache package.
const Subsystem = "CACH"

var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-wide logger used by the cache package.
func UseLogger(logger btclog.Logger) {
	log = logger
}
