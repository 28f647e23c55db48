package core

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// GoroutineThreadPool is a fixed set of worker goroutines pulling tasks from one
// TaskScheduler. The worker count is the bound that a disruptive unit can exhaust.
type GoroutineThreadPool struct {
	id        string
	workers   int
	scheduler *TaskScheduler
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
	runningMu sync.RWMutex
}

var _ ThreadPool = (*GoroutineThreadPool)(nil)

// NewGoroutineThreadPool creates a pool; workers <= 0 means runtime.GOMAXPROCS(0).
func NewGoroutineThreadPool(id string, workers int) *GoroutineThreadPool {
	return NewGoroutineThreadPoolWithConfig(id, workers, DefaultTaskSchedulerConfig())
}

func NewGoroutineThreadPoolWithConfig(id string, workers int, config *TaskSchedulerConfig) *GoroutineThreadPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &GoroutineThreadPool{
		id:        id,
		workers:   workers,
		scheduler: NewFIFOTaskSchedulerWithConfig(id, workers, config),
	}
}

// Start starts all worker goroutines
func (tg *GoroutineThreadPool) Start(ctx context.Context) {
	tg.runningMu.Lock()
	defer tg.runningMu.Unlock()

	if tg.running {
		return // Already running
	}

	tg.ctx, tg.cancel = context.WithCancel(ctx)
	tg.running = true

	for i := 0; i < tg.workers; i++ {
		tg.wg.Add(1)
		go tg.workerLoop(i, tg.ctx)
	}
}

// Stop shuts the scheduler down, cancels the workers and waits for them.
// A worker blocked inside a task is waited for, not interrupted.
func (tg *GoroutineThreadPool) Stop() {
	// Always shutdown scheduler to release the delay manager goroutine
	// even if pool was never started
	tg.scheduler.Shutdown()

	tg.runningMu.Lock()
	if !tg.running {
		tg.runningMu.Unlock()
		return
	}
	tg.running = false
	tg.runningMu.Unlock()

	if tg.cancel != nil {
		tg.cancel()
	}
	tg.Join()
}

// ID returns the ID of the thread pool
func (tg *GoroutineThreadPool) ID() string {
	return tg.id
}

// IsRunning returns whether the thread pool is running
func (tg *GoroutineThreadPool) IsRunning() bool {
	tg.runningMu.RLock()
	defer tg.runningMu.RUnlock()
	return tg.running
}

func (tg *GoroutineThreadPool) workerLoop(id int, ctx context.Context) {
	defer tg.wg.Done()
	stopCh := ctx.Done()

	for {
		task, ok := tg.scheduler.GetWork(stopCh)
		if !ok {
			return
		}

		tg.scheduler.OnTaskStart()

		func() {
			defer func() {
				tg.scheduler.OnTaskEnd()
				if r := recover(); r != nil {
					tg.scheduler.GetPanicHandler().HandlePanic(ctx, tg.id, id, r, debug.Stack())
				}
			}()
			task(ctx)
		}()
	}
}

// Join waits for all worker goroutines to finish
func (tg *GoroutineThreadPool) Join() {
	tg.wg.Wait()
}

// WorkerCount returns the number of workers
func (tg *GoroutineThreadPool) WorkerCount() int {
	return tg.workers
}

func (tg *GoroutineThreadPool) QueuedTaskCount() int {
	return tg.scheduler.QueuedTaskCount()
}

func (tg *GoroutineThreadPool) ActiveTaskCount() int {
	return tg.scheduler.ActiveTaskCount()
}

func (tg *GoroutineThreadPool) DelayedTaskCount() int {
	return tg.scheduler.DelayedTaskCount()
}

func (tg *GoroutineThreadPool) PostInternal(task Task, traits TaskTraits) {
	tg.scheduler.PostInternal(task, traits)
}

func (tg *GoroutineThreadPool) PostDelayedInternal(task Task, delay time.Duration, traits TaskTraits, target TaskRunner) {
	tg.scheduler.PostDelayedInternal(task, delay, traits, target)
}

// Stats returns a snapshot for the snapshot poller.
func (tg *GoroutineThreadPool) Stats() PoolStats {
	return PoolStats{
		ID:      tg.id,
		Workers: tg.workers,
		Queued:  tg.QueuedTaskCount(),
		Active:  tg.ActiveTaskCount(),
		Delayed: tg.DelayedTaskCount(),
		Running: tg.IsRunning(),
	}
}
