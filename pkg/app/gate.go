package app

import (
	"context"
	"sync"
)

// The current-app gate. Handlers and service methods never consult it,
// they receive their Runtime explicitly; the gate arbitrates processes
// that construct more than one App and need one at a time to act as the
// process-wide default.
var (
	gate = make(chan struct{}, 1)

	currentMu  sync.Mutex
	currentApp *App
)

// MakeCurrent makes this app the current one, waiting until any previous
// holder releases. Waiters acquire in order; a cancelled context gives up
// the spot and returns the context's error. The returned release func is
// idempotent.
func (a *App) MakeCurrent(ctx context.Context) (func(), error) {
	select {
	case gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	currentMu.Lock()
	currentApp = a
	currentMu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			currentMu.Lock()
			currentApp = nil
			currentMu.Unlock()
			<-gate
		})
	}
	return release, nil
}

// Current returns the app holding the gate, or nil when none does.
func Current() *App {
	currentMu.Lock()
	defer currentMu.Unlock()
	return currentApp
}
