package core

import (
	"context"
	"testing"
	"time"
)

// TestTaskScheduler_GetWorkReturnsPosted verifies the ready queue hands out posted tasks
// Given: A scheduler with one posted task
// When: GetWork is called
// Then: The task is returned and the queued count drops back to zero
func TestTaskScheduler_GetWorkReturnsPosted(t *testing.T) {
	// Arrange
	s := NewFIFOTaskScheduler("test", 1)
	defer s.Shutdown()

	ran := false
	s.PostInternal(func(ctx context.Context) { ran = true }, DefaultTaskTraits())
	if s.QueuedTaskCount() != 1 {
		t.Fatalf("QueuedTaskCount() = %d, want 1", s.QueuedTaskCount())
	}

	// Act
	task, ok := s.GetWork(make(chan struct{}))

	// Assert
	if !ok {
		t.Fatal("GetWork() = false, want true")
	}
	task(context.Background())
	if !ran {
		t.Error("returned task is not the posted one")
	}
	if s.QueuedTaskCount() != 0 {
		t.Errorf("QueuedTaskCount() = %d, want 0", s.QueuedTaskCount())
	}
}

// TestTaskScheduler_GetWorkStops verifies an idle worker leaves once stopCh closes
func TestTaskScheduler_GetWorkStops(t *testing.T) {
	s := NewFIFOTaskScheduler("test", 1)
	defer s.Shutdown()

	stop := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(stop)
	}()

	if _, ok := s.GetWork(stop); ok {
		t.Error("GetWork() on empty queue = true after stop, want false")
	}
}

// TestTaskScheduler_RejectsAfterShutdown verifies posts during teardown are refused
// Given: A scheduler with a metrics recorder that has been shut down
// When: A task is posted
// Then: It is not queued and one rejection is recorded
func TestTaskScheduler_RejectsAfterShutdown(t *testing.T) {
	// Arrange
	metrics := NewTestMetrics()
	s := NewFIFOTaskSchedulerWithConfig("pool-a", 1, &TaskSchedulerConfig{Metrics: metrics})
	s.Shutdown()

	// Act
	s.PostInternal(func(ctx context.Context) {}, DefaultTaskTraits())
	s.PostDelayedInternal(func(ctx context.Context) {}, time.Millisecond, DefaultTaskTraits(), &syncRunner{})

	// Assert
	if s.QueuedTaskCount() != 0 {
		t.Errorf("QueuedTaskCount() = %d, want 0", s.QueuedTaskCount())
	}
	if s.DelayedTaskCount() != 0 {
		t.Errorf("DelayedTaskCount() = %d, want 0", s.DelayedTaskCount())
	}
	rejections := metrics.Rejections()
	if len(rejections) != 1 || rejections[0] != "pool-a: shutting down" {
		t.Errorf("rejections = %v, want [pool-a: shutting down]", rejections)
	}
}

// TestTaskScheduler_ActiveCount verifies OnTaskStart/OnTaskEnd bookkeeping
func TestTaskScheduler_ActiveCount(t *testing.T) {
	s := NewFIFOTaskScheduler("test", 2)
	defer s.Shutdown()

	s.OnTaskStart()
	s.OnTaskStart()
	if s.ActiveTaskCount() != 2 {
		t.Errorf("ActiveTaskCount() = %d, want 2", s.ActiveTaskCount())
	}
	s.OnTaskEnd()
	if s.ActiveTaskCount() != 1 {
		t.Errorf("ActiveTaskCount() = %d, want 1", s.ActiveTaskCount())
	}
	if s.WorkerCount() != 2 {
		t.Errorf("WorkerCount() = %d, want 2", s.WorkerCount())
	}
}
