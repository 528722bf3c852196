package osutil

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Returns a context derived from parent that is cancelled when Ctrl+C is
// pressed or SIGTERM is received.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
