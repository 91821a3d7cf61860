// Package shutdown coordinates graceful process shutdown.
package shutdown

import (
	"context"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
)

// Hook releases a resource at shutdown. The context passed to it is still
// alive.
type Hook func(ctx context.Context) error

type namedHook struct {
	name string
	hook Hook
}

var (
	mut     sync.Mutex         //nolint:gochecknoglobals
	hooks   []namedHook        //nolint:gochecknoglobals
	trigger context.CancelFunc //nolint:gochecknoglobals
)

// BeforeShutdown registers a hook to be called before the shutdown context
// is canceled. Hooks run in reverse registration order.
func BeforeShutdown(name string, h Hook) {
	mut.Lock()
	defer mut.Unlock()

	hooks = append(hooks, namedHook{name: name, hook: h})
}

// Shutdown triggers the shutdown process. Usually the shutdown is kicked off
// by a signal, but this function can be used to trigger it programmatically.
func Shutdown() {
	mut.Lock()
	cancel := trigger
	mut.Unlock()

	if cancel != nil {
		cancel()
	}
}

// SetupHandler listens for SIGINT and SIGTERM and returns a context that is
// canceled once a signal arrives (or Shutdown is called) and every hook has
// run.
func SetupHandler(parent context.Context) context.Context {
	signalled, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))

	mut.Lock()
	trigger = stop
	mut.Unlock()

	go func() {
		<-signalled.Done()
		stop()

		slog.Warn("Shutting down...")

		cleanup(ctx)
		cancel()
	}()

	return ctx
}

func cleanup(ctx context.Context) {
	mut.Lock()
	pending := hooks
	hooks = nil
	trigger = nil
	mut.Unlock()

	for i := len(pending) - 1; i >= 0; i-- {
		if err := pending[i].hook(ctx); err != nil {
			slog.Error("shutdown hook failed", "hook", pending[i].name, "error", err)
		}
	}
}
