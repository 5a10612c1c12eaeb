// safego.go - Panic-recovering goroutine launcher.
package util

import (
	"runtime/debug"

	"github.com/rs/zerolog"
)

// SafeGo launches fn in a goroutine with deferred panic recovery.
// On panic: logs the stack trace. Does NOT os.Exit; background panics
// should be survivable so the daemon stays up.
func SafeGo(log zerolog.Logger, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("panic in background goroutine")
			}
		}()
		fn()
	}()
}
