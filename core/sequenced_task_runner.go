package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// SequencedTaskRunner runs its tasks one at a time, in post order, on whichever pool
// worker is free. Each pooled unit owns one, so a unit's steps never overlap even
// when the pool has many workers.
type SequencedTaskRunner struct {
	name          string
	threadPool    ThreadPool
	queue         *TaskQueue
	mu            sync.Mutex
	isRunning     bool
	activeRunners atomic.Int32 // guard for the one-at-a-time assertion
	closed        atomic.Bool
	panicHandler  PanicHandler
}

func NewSequencedTaskRunner(name string, threadPool ThreadPool, panicHandler PanicHandler) *SequencedTaskRunner {
	if panicHandler == nil {
		panicHandler = &LoggingPanicHandler{Logger: NewNoOpLogger()}
	}
	return &SequencedTaskRunner{
		name:         name,
		threadPool:   threadPool,
		queue:        NewTaskQueue(),
		panicHandler: panicHandler,
	}
}

// Name returns the name given at construction.
func (r *SequencedTaskRunner) Name() string {
	return r.name
}

func (r *SequencedTaskRunner) PostDelayedTaskWithTraits(task Task, delay time.Duration, traits TaskTraits) {
	if r.closed.Load() {
		return
	}
	r.threadPool.PostDelayedInternal(task, delay, traits, r)
}

func (r *SequencedTaskRunner) PostDelayedTask(task Task, delay time.Duration) {
	r.PostDelayedTaskWithTraits(task, delay, DefaultTaskTraits())
}

// PostTask submits task (using default Traits)
func (r *SequencedTaskRunner) PostTask(task Task) {
	r.PostTaskWithTraits(task, DefaultTaskTraits())
}

// PostTaskWithTraits submits task with traits
func (r *SequencedTaskRunner) PostTaskWithTraits(task Task, traits TaskTraits) {
	if r.closed.Load() {
		return
	}
	r.queue.Push(task, traits)
	r.scheduleRunLoop(traits)
}

func (r *SequencedTaskRunner) runLoop(ctx context.Context) {
	if n := r.activeRunners.Add(1); n > 1 {
		panic(fmt.Sprintf("SequencedTaskRunner %s: concurrent runLoop detected (count=%d)", r.name, n))
	}
	defer r.activeRunners.Add(-1)

	runCtx := context.WithValue(ctx, taskRunnerKey, r)

	item, ok := r.queue.Pop()
	if ok {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.panicHandler.HandlePanic(runCtx, r.name, -1, rec, debug.Stack())
				}
			}()
			item.Task(runCtx)
		}()
	}

	// Yield to the scheduler between every task
	r.mu.Lock()
	if r.queue.Len() == 0 {
		r.isRunning = false
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	nextTraits, _ := r.queue.Head()
	r.threadPool.PostInternal(r.runLoop, nextTraits)
}

// scheduleRunLoop starts runLoop (if not already running)
func (r *SequencedTaskRunner) scheduleRunLoop(traits TaskTraits) {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return
	}
	r.isRunning = true
	r.mu.Unlock()
	r.threadPool.PostInternal(r.runLoop, traits)
}

// Shutdown stops accepting tasks and drops the pending queue.
// A task already running is not interrupted.
func (r *SequencedTaskRunner) Shutdown() {
	r.closed.Store(true)

	r.mu.Lock()
	r.queue.Clear()
	r.mu.Unlock()
}

// IsClosed returns true if the runner has been shut down.
func (r *SequencedTaskRunner) IsClosed() bool {
	return r.closed.Load()
}

// PendingTaskCount returns the number of queued tasks.
func (r *SequencedTaskRunner) PendingTaskCount() int {
	return r.queue.Len()
}
