//go:build windows

package shutdown

import "context"

// NotifyContext on Windows would hook a Console Ctrl handler per §6; until
// that handler is implemented, callers still get a cancelable context so
// the rest of the supervisor is portable without conditional compilation at
// every call site.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(parent)
}
