// Package signal turns SIGINT and SIGTERM into context cancellation.
package signal

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// Setup returns a context cancelled on the first SIGINT or SIGTERM. The
// returned stop function releases the signal subscription.
func Setup(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// PrintCancelled tells the user a command stopped early.
func PrintCancelled(w io.Writer, commandName string) {
	const colorGreen = "\033[32m"
	const colorReset = "\033[0m"
	_, _ = fmt.Fprintf(w, "\n%s%s cancelled%s\n", colorGreen, commandName, colorReset)
}
