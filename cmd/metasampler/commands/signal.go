package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// signalContext is cancelled on the first SIGINT/SIGTERM so the running
// command can finish up; a second signal exits immediately.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Warn("received signal, shutting down gracefully (again to force)", zap.Stringer("signal", sig))
			cancel()
		case <-stopped:
			return
		}

		select {
		case sig := <-sigCh:
			logger.Error("received second signal, forcing exit", zap.Stringer("signal", sig))
			os.Exit(1)
		case <-stopped:
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
		close(stopped)
	}
}
