package tutoring

import (
	"context"
)

// withContextCancelHook invokes onContextDone when ctx is cancelled. Closing
// the returned channel detaches the hook without invoking it.
func withContextCancelHook(ctx context.Context, onContextDone func()) chan struct{} {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			onContextDone()
		case <-done:
		}
	}()
	return done
}
