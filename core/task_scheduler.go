package core

import (
	"sync/atomic"
	"time"
)

// TaskScheduler is the ready queue shared by every worker of one pool.
type TaskScheduler struct {
	owner       string
	queue       *TaskQueue
	signal      chan struct{}
	workerCount int

	delayManager *DelayManager

	metricQueued atomic.Int32 // Waiting in the ready queue
	metricActive atomic.Int32 // Executing in a worker

	panicHandler        PanicHandler
	metrics             Metrics
	rejectedTaskHandler RejectedTaskHandler

	shuttingDown atomic.Bool
}

func NewFIFOTaskScheduler(owner string, workerCount int) *TaskScheduler {
	return NewFIFOTaskSchedulerWithConfig(owner, workerCount, DefaultTaskSchedulerConfig())
}

func NewFIFOTaskSchedulerWithConfig(owner string, workerCount int, config *TaskSchedulerConfig) *TaskScheduler {
	s := &TaskScheduler{
		owner:        owner,
		signal:       make(chan struct{}, workerCount*2),
		workerCount:  workerCount,
		queue:        NewTaskQueue(),
		delayManager: NewDelayManager(),
	}

	if config != nil {
		s.panicHandler = config.PanicHandler
		s.metrics = config.Metrics
		s.rejectedTaskHandler = config.RejectedTaskHandler
	}

	// Use defaults if not provided
	if s.panicHandler == nil {
		s.panicHandler = &LoggingPanicHandler{Logger: NewDefaultLogger()}
	}
	if s.metrics == nil {
		s.metrics = &NilMetrics{}
	}
	if s.rejectedTaskHandler == nil {
		s.rejectedTaskHandler = &LoggingRejectedTaskHandler{}
	}

	return s
}

// PostInternal queues a task for the next free worker.
func (s *TaskScheduler) PostInternal(task Task, traits TaskTraits) {
	if s.shuttingDown.Load() {
		s.rejectedTaskHandler.HandleRejectedTask(s.owner, "shutting down")
		s.metrics.RecordTaskRejected(s.owner, "shutting down")
		return
	}

	s.queue.Push(task, traits)
	s.metricQueued.Add(1)

	select {
	case s.signal <- struct{}{}:
	default:
		// Signal channel full, but task is already queued
	}
}

// PostDelayedInternal parks a task; it reaches target once delay has elapsed.
func (s *TaskScheduler) PostDelayedInternal(task Task, delay time.Duration, traits TaskTraits, target TaskRunner) {
	if s.shuttingDown.Load() {
		return
	}
	s.delayManager.AddDelayedTask(task, delay, traits, target)
}

// GetWork blocks until a task is ready or stopCh closes. Called by workers.
func (s *TaskScheduler) GetWork(stopCh <-chan struct{}) (Task, bool) {
	for {
		if item, ok := s.queue.Pop(); ok {
			s.metricQueued.Add(-1)
			return item.Task, true
		}

		select {
		case <-s.signal:
			continue
		case <-stopCh:
			return nil, false
		}
	}
}

// Shutdown stops accepting tasks, drops parked wakeups and clears the ready queue.
func (s *TaskScheduler) Shutdown() {
	s.shuttingDown.Store(true)
	s.delayManager.Stop()
	s.queue.Clear()
	s.metricQueued.Store(0)
}

func (s *TaskScheduler) WorkerCount() int      { return s.workerCount }
func (s *TaskScheduler) QueuedTaskCount() int  { return int(s.metricQueued.Load()) }
func (s *TaskScheduler) ActiveTaskCount() int  { return int(s.metricActive.Load()) }
func (s *TaskScheduler) DelayedTaskCount() int { return s.delayManager.TaskCount() }

func (s *TaskScheduler) OnTaskStart() {
	s.metricActive.Add(1)
}

func (s *TaskScheduler) OnTaskEnd() {
	s.metricActive.Add(-1)
}

// GetPanicHandler returns the panic handler for this scheduler
func (s *TaskScheduler) GetPanicHandler() PanicHandler {
	return s.panicHandler
}
