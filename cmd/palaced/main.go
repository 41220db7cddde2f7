// Command palaced runs the Palace game server: a websocket endpoint
// speaking the lobby/game protocol in internal/protocol, backed by an
// in-memory internal/lobby.Registry and the background loops in
// internal/scheduler.
package main

import (
	"os"

	"palace/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logging.L().WithError(err).Error("palaced exited with error")
		os.Exit(1)
	}
}
