package core

import (
	"container/heap"
	"sync"
	"time"
)

// wakeup is a pooled task parked until its deadline.
// Cooperative sleeps in the pooled model are wakeups: the task gives its worker back
// and is re-queued on its runner when the deadline passes.
type wakeup struct {
	at     time.Time
	task   Task
	traits TaskTraits
	target TaskRunner
	index  int
}

type wakeupHeap []*wakeup

func (h wakeupHeap) Len() int           { return len(h) }
func (h wakeupHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h wakeupHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *wakeupHeap) Push(x any) {
	w := x.(*wakeup)
	w.index = len(*h)
	*h = append(*h, w)
}

func (h *wakeupHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil // avoid memory leak
	w.index = -1
	*h = old[:n-1]
	return w
}

// DelayManager owns one timer goroutine that re-posts parked tasks to their runners.
type DelayManager struct {
	mu      sync.Mutex
	pending wakeupHeap
	kick    chan struct{}
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewDelayManager() *DelayManager {
	dm := &DelayManager{
		kick: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go dm.loop()
	return dm
}

// AddDelayedTask parks task until delay has elapsed, then posts it to target.
func (dm *DelayManager) AddDelayedTask(task Task, delay time.Duration, traits TaskTraits, target TaskRunner) {
	dm.mu.Lock()
	w := &wakeup{at: time.Now().Add(delay), task: task, traits: traits, target: target}
	heap.Push(&dm.pending, w)
	earliest := w.index == 0
	dm.mu.Unlock()

	if earliest {
		select {
		case dm.kick <- struct{}{}:
		default:
		}
	}
}

func (dm *DelayManager) loop() {
	defer close(dm.done)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		due, wait := dm.takeDue(time.Now())
		for _, w := range due {
			w.target.PostTaskWithTraits(w.task, w.traits)
		}
		timer.Reset(wait)

		select {
		case <-dm.quit:
			return
		case <-timer.C:
		case <-dm.kick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// takeDue pops every wakeup whose deadline has passed and returns how long to sleep
// until the next one.
func (dm *DelayManager) takeDue(now time.Time) ([]*wakeup, time.Duration) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	var due []*wakeup
	for len(dm.pending) > 0 && !dm.pending[0].at.After(now) {
		due = append(due, heap.Pop(&dm.pending).(*wakeup))
	}
	if len(dm.pending) == 0 {
		return due, time.Hour
	}
	return due, dm.pending[0].at.Sub(now)
}

// Stop ends the timer goroutine and drops every parked task.
// It waits for the goroutine so no re-post happens after Stop returns.
func (dm *DelayManager) Stop() {
	dm.once.Do(func() {
		close(dm.quit)
		<-dm.done

		dm.mu.Lock()
		dm.pending = nil
		dm.mu.Unlock()
	})
}

func (dm *DelayManager) TaskCount() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.pending)
}
