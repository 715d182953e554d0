package utils

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

const shutdownTimeout = 15 * time.Second

// ShutdownManager cancels the base context on SIGINT/SIGTERM and then runs the
// registered close hooks. The cancelled context also stops the webhook
// dispatcher worker and the expiration scheduler, which hang off it directly.
type ShutdownManager struct {
	cancel context.CancelFunc

	mu    sync.Mutex
	hooks []func(context.Context) error
}

func NewShutdownManager(parent context.Context) (context.Context, *ShutdownManager) {
	ctx, cancel := context.WithCancel(parent)
	return ctx, &ShutdownManager{cancel: cancel}
}

// Register adds a close hook. Hooks run in registration order (Mongo, Redis,
// HTTP-сервер) against a shared deadline; a failing hook is logged and does
// not stop the rest.
func (sm *ShutdownManager) Register(hook func(context.Context) error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.hooks = append(sm.hooks, hook)
}

func (sm *ShutdownManager) StartListening() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		log.Printf("[SHUTDOWN] Caught %v, stopping marketplace service...", sig)
		sm.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		sm.runHooks(ctx)

		log.Println("[SHUTDOWN] All close hooks finished, exiting")
		os.Exit(0)
	}()
}

func (sm *ShutdownManager) runHooks(ctx context.Context) {
	sm.mu.Lock()
	hooks := sm.hooks
	sm.mu.Unlock()

	for _, hook := range hooks {
		if err := hook(ctx); err != nil {
			log.Printf("[SHUTDOWN] Close hook failed: %v", err)
		}
	}
}
