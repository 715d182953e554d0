package utils

import (
	"context"
	"errors"
	"testing"
)

func TestShutdownManager_RunsHooksInRegistrationOrder(t *testing.T) {
	_, sm := NewShutdownManager(context.Background())

	var order []string
	sm.Register(func(context.Context) error {
		order = append(order, "mongo")
		return nil
	})
	sm.Register(func(context.Context) error {
		order = append(order, "redis")
		return errors.New("connection already closed")
	})
	sm.Register(func(context.Context) error {
		order = append(order, "http")
		return nil
	})

	sm.runHooks(context.Background())

	if len(order) != 3 {
		t.Fatalf("ran %d hooks, want 3 (a failing hook must not stop the rest)", len(order))
	}
	for i, want := range []string{"mongo", "redis", "http"} {
		if order[i] != want {
			t.Errorf("hook %d = %s, want %s", i, order[i], want)
		}
	}
}

func TestNewShutdownManager_DerivedContext(t *testing.T) {
	ctx, _ := NewShutdownManager(context.Background())
	select {
	case <-ctx.Done():
		t.Fatal("context must stay live until a signal arrives")
	default:
	}
}
