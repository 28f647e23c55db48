package core

import (
	"sync"
)

const (
	minRingSize = 16
	// A ring at least this large shrinks by half once it is a quarter full.
	shrinkMinSize = 64
)

type TaskItem struct {
	Task   Task
	Traits TaskTraits
}

// TaskQueue is a mutex-guarded FIFO ring of tasks.
// A disruptive unit that re-posts itself lands behind every foreground step already
// queued; a starved tick completes as soon as the blocking step lets its worker go.
type TaskQueue struct {
	mu    sync.Mutex
	ring  []TaskItem
	head  int
	count int
}

func NewTaskQueue() *TaskQueue {
	return &TaskQueue{ring: make([]TaskItem, minRingSize)}
}

func (q *TaskQueue) Push(t Task, traits TaskTraits) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == len(q.ring) {
		q.resizeLocked(2 * len(q.ring))
	}
	q.ring[(q.head+q.count)%len(q.ring)] = TaskItem{Task: t, Traits: traits}
	q.count++
}

func (q *TaskQueue) Pop() (TaskItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return TaskItem{}, false
	}

	item := q.ring[q.head]
	q.ring[q.head] = TaskItem{} // drop the closure reference
	q.head = (q.head + 1) % len(q.ring)
	q.count--

	if n := len(q.ring); n >= shrinkMinSize && q.count*4 < n {
		q.resizeLocked(n / 2)
	}
	return item, true
}

// resizeLocked copies the live items to a fresh ring of size n, head first.
func (q *TaskQueue) resizeLocked(n int) {
	ring := make([]TaskItem, max(n, minRingSize))
	for i := 0; i < q.count; i++ {
		ring[i] = q.ring[(q.head+i)%len(q.ring)]
	}
	q.ring = ring
	q.head = 0
}

// Head returns the traits of the next task without removing it.
func (q *TaskQueue) Head() (TaskTraits, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return TaskTraits{}, false
	}
	return q.ring[q.head].Traits, true
}

func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Clear drops every queued task.
func (q *TaskQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ring = make([]TaskItem, minRingSize)
	q.head = 0
	q.count = 0
}
