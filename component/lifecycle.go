package component

import (
	"context"
	"time"
)

// LifecycleComponent is a Discoverable that runs in the background.
//   - Start(ctx) launches the component's goroutines; ctx bounds their lifetime.
//   - Stop(timeout) signals shutdown and waits at most timeout for it.
//
// Both must be idempotent.
type LifecycleComponent interface {
	Discoverable
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

// IsLifecycleComponent checks if a component supports lifecycle management
func IsLifecycleComponent(comp Discoverable) bool {
	_, ok := comp.(LifecycleComponent)
	return ok
}
