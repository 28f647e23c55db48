package core

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync/atomic"
)

// DedicatedThread runs one body on a goroutine locked to its own OS thread.
// The thread is not returned to the runtime: it exits together with the body.
//
// Key differences from a pooled task:
// - The body owns the thread for its whole life, including while it sleeps or blocks
// - Creating one costs an OS thread, so the count grows with every unit
type DedicatedThread struct {
	name     string
	started  chan struct{}
	stopped  chan struct{}
	panicked atomic.Bool
}

// StartDedicatedThread spawns the thread and returns once the body is about to run.
// live, when non-nil, is incremented while the thread runs.
func StartDedicatedThread(name string, live *atomic.Int32, panicHandler PanicHandler, body func()) *DedicatedThread {
	t := &DedicatedThread{
		name:    name,
		started: make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go t.run(live, panicHandler, body)
	<-t.started
	return t
}

func (t *DedicatedThread) run(live *atomic.Int32, panicHandler PanicHandler, body func()) {
	defer close(t.stopped)

	// Never unlocked: the OS thread is torn down when this goroutine exits.
	runtime.LockOSThread()

	if live != nil {
		live.Add(1)
		defer live.Add(-1)
	}
	close(t.started)

	defer func() {
		if rec := recover(); rec != nil {
			t.panicked.Store(true)
			if panicHandler != nil {
				panicHandler.HandlePanic(context.Background(), t.name, -1, rec, debug.Stack())
			}
		}
	}()
	body()
}

// Name returns the thread's name.
func (t *DedicatedThread) Name() string {
	return t.name
}

// Done is closed when the body has returned or panicked.
func (t *DedicatedThread) Done() <-chan struct{} {
	return t.stopped
}

// Join blocks until the thread has exited.
func (t *DedicatedThread) Join() {
	<-t.stopped
}

// Panicked reports whether the body ended in a panic. Valid after Done.
func (t *DedicatedThread) Panicked() bool {
	return t.panicked.Load()
}
