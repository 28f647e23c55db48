package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// countingHandler counts renders per unit.
type countingHandler struct {
	mu      sync.Mutex
	renders map[int]int
	total   atomic.Int64
}

func newCountingHandler() *countingHandler {
	return &countingHandler{renders: make(map[int]int)}
}

func (h *countingHandler) handle(ctx context.Context, unit UnitInfo, tick Tick) {
	h.mu.Lock()
	h.renders[unit.ID]++
	h.mu.Unlock()
	h.total.Add(1)
}

func (h *countingHandler) rendersOf(id int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.renders[id]
}

// TestSequentialModel_RendersOnCaller verifies every foreground unit renders inside RunInteractive
// Given: A sequential model with 2 foreground and 1 background unit
// When: RunInteractive then JoinInteractive are called
// Then: Both units rendered before Run returned and the counter advanced by exactly 1 in Join
func TestSequentialModel_RendersOnCaller(t *testing.T) {
	// Arrange
	var order []string
	opts := fastOptions()
	opts.TickHandler = func(ctx context.Context, unit UnitInfo, tick Tick) {
		order = append(order, unit.Title)
	}
	m := NewSequentialModel(opts)
	defer m.Shutdown()

	counter := NewSharedCounter()
	require.NoError(t, m.CreateForegroundTask())
	require.NoError(t, m.CreateForegroundTask())
	require.NoError(t, m.CreateBackgroundTask(counter))
	require.Equal(t, 1, m.NumBackgroundTasks())

	// Act
	require.NoError(t, m.RunInteractive(0))

	// Assert - rendered in creation order, background untouched
	require.Equal(t, []string{"Window 0", "Window 1"}, order)
	require.Zero(t, counter.Load())

	// Act
	require.NoError(t, m.JoinInteractive())

	// Assert
	require.EqualValues(t, 1, counter.Load())
}

// TestSequentialModel_BackgroundOnlyAdvancesInJoin verifies background progress is tied to the driver
func TestSequentialModel_BackgroundOnlyAdvancesInJoin(t *testing.T) {
	m := NewSequentialModel(fastOptions())
	defer m.Shutdown()

	counter := NewSharedCounter()
	for range 3 {
		require.NoError(t, m.CreateBackgroundTask(counter))
	}

	time.Sleep(20 * time.Millisecond)
	require.Zero(t, counter.Load())

	for i := range 4 {
		require.NoError(t, m.RunInteractive(i))
		require.NoError(t, m.JoinInteractive())
	}
	require.EqualValues(t, 12, counter.Load())
}

// TestSequentialModel_PanicUnwindsIntoCaller verifies a failing render is the caller's failure
func TestSequentialModel_PanicUnwindsIntoCaller(t *testing.T) {
	opts := fastOptions()
	opts.TickHandler = func(ctx context.Context, unit UnitInfo, tick Tick) { panic("render failed") }
	m := NewSequentialModel(opts)
	defer m.Shutdown()
	require.NoError(t, m.CreateForegroundTask())

	require.PanicsWithValue(t, "render failed", func() { _ = m.RunInteractive(0) })
}

// TestThreadPerTaskModel_OneThreadPerUnit verifies every unit owns a live OS thread
// Given: A thread-per-task model with 2 foreground and 3 background units
// When: Stats is read and then the model is shut down
// Then: Five contexts are live before Shutdown and none after
func TestThreadPerTaskModel_OneThreadPerUnit(t *testing.T) {
	// Arrange
	m := NewThreadPerTaskModel(fastOptions())
	counter := NewSharedCounter()
	require.NoError(t, m.CreateForegroundTask())
	require.NoError(t, m.CreateForegroundTask())
	for range 3 {
		require.NoError(t, m.CreateBackgroundTask(counter))
	}

	// Assert
	require.Equal(t, 5, m.Stats().LiveContexts)
	require.Equal(t, 3, m.NumBackgroundTasks())

	// Act
	require.NoError(t, m.Shutdown())

	// Assert
	require.Zero(t, m.Stats().LiveContexts)
}

// TestThreadModels_Rendezvous verifies Join returns only after every unit rendered the tick
// Given: A concurrent model with 4 foreground units
// When: 10 Run/Join rounds are driven
// Then: After each Join every unit has rendered exactly once more
func TestThreadModels_Rendezvous(t *testing.T) {
	for _, kind := range []ThreadModelKind{KindOneThreadPerTask, KindPooledWorkerTasks} {
		t.Run(kind.Slug(), func(t *testing.T) {
			// Arrange
			h := newCountingHandler()
			opts := fastOptions()
			opts.PoolWorkers = 2
			opts.TickHandler = func(ctx context.Context, unit UnitInfo, tick Tick) {
				time.Sleep(time.Millisecond)
				h.handle(ctx, unit, tick)
			}
			m, err := NewThreadModel(kind, opts)
			require.NoError(t, err)
			defer m.Shutdown()

			for range 4 {
				require.NoError(t, m.CreateForegroundTask())
			}

			// Act and Assert
			for round := 1; round <= 10; round++ {
				require.NoError(t, m.RunInteractive(round))
				require.NoError(t, m.JoinInteractive())
				require.EqualValues(t, 4*round, h.total.Load())
				for id := range 4 {
					require.Equal(t, round, h.rendersOf(id))
				}
			}
		})
	}
}

// TestThreadModels_BackgroundProgressIsMonotonic verifies background units advance on their own
// Given: A concurrent model with 3 background units and no driver activity
// When: The counter is sampled over time
// Then: It never decreases and eventually passes 10
func TestThreadModels_BackgroundProgressIsMonotonic(t *testing.T) {
	for _, kind := range []ThreadModelKind{KindOneThreadPerTask, KindPooledWorkerTasks} {
		t.Run(kind.Slug(), func(t *testing.T) {
			m, err := NewThreadModel(kind, fastOptions())
			require.NoError(t, err)
			defer m.Shutdown()

			counter := NewSharedCounter()
			for range 3 {
				require.NoError(t, m.CreateBackgroundTask(counter))
			}

			var last atomic.Uint64
			var decreased atomic.Bool
			require.Eventually(t, func() bool {
				now := counter.Load()
				if now < last.Swap(now) {
					decreased.Store(true)
				}
				return now > 10
			}, 5*time.Second, 5*time.Millisecond)
			require.False(t, decreased.Load())
		})
	}
}

// TestThreadModels_ShutdownStopsBackground verifies no increments happen after Shutdown returns
func TestThreadModels_ShutdownStopsBackground(t *testing.T) {
	for _, kind := range []ThreadModelKind{KindOneThreadPerTask, KindPooledWorkerTasks} {
		t.Run(kind.Slug(), func(t *testing.T) {
			m, err := NewThreadModel(kind, fastOptions())
			require.NoError(t, err)

			counter := NewSharedCounter()
			for range 4 {
				require.NoError(t, m.CreateBackgroundTask(counter))
			}
			time.Sleep(20 * time.Millisecond)

			require.NoError(t, m.Shutdown())
			frozen := counter.Load()
			time.Sleep(30 * time.Millisecond)

			require.Equal(t, frozen, counter.Load())
		})
	}
}

// TestThreadModels_ShutdownWithUnjoinedTick verifies teardown does not hang on a pending completion
// Given: A concurrent model whose last tick was never joined
// When: Shutdown is called
// Then: It returns promptly without error
func TestThreadModels_ShutdownWithUnjoinedTick(t *testing.T) {
	for _, kind := range []ThreadModelKind{KindOneThreadPerTask, KindPooledWorkerTasks} {
		t.Run(kind.Slug(), func(t *testing.T) {
			m, err := NewThreadModel(kind, fastOptions())
			require.NoError(t, err)
			for range 3 {
				require.NoError(t, m.CreateForegroundTask())
			}
			require.NoError(t, m.RunInteractive(0))

			done := make(chan error, 1)
			go func() { done <- m.Shutdown() }()

			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("Shutdown did not return")
			}
		})
	}
}

// TestThreadModels_ClosedModelRejectsCalls verifies a shut-down model refuses new work
func TestThreadModels_ClosedModelRejectsCalls(t *testing.T) {
	for _, kind := range AllKinds {
		t.Run(kind.Slug(), func(t *testing.T) {
			m, err := NewThreadModel(kind, fastOptions())
			require.NoError(t, err)
			require.NoError(t, m.Shutdown())

			require.ErrorIs(t, m.CreateForegroundTask(), ErrModelClosed)
			require.ErrorIs(t, m.CreateBackgroundTask(NewSharedCounter()), ErrModelClosed)
			require.ErrorIs(t, m.RunInteractive(0), ErrModelClosed)
			require.ErrorIs(t, m.JoinInteractive(), ErrModelClosed)
		})
	}
}

// TestThreadModels_DroppedUnitBreaksModel verifies a dead foreground unit is reported, not waited on
// Given: A concurrent model where unit 1 panics while rendering
// When: One Run/Join round is driven
// Then: Join fails with ErrUnitDropped, later rounds fail with ErrModelBroken and Shutdown reports the drop
func TestThreadModels_DroppedUnitBreaksModel(t *testing.T) {
	for _, kind := range []ThreadModelKind{KindOneThreadPerTask, KindPooledWorkerTasks} {
		t.Run(kind.Slug(), func(t *testing.T) {
			// Arrange
			metrics := NewTestMetrics()
			handler := NewTestPanicHandler()
			opts := fastOptions()
			opts.Metrics = metrics
			opts.PanicHandler = handler
			opts.TickHandler = func(ctx context.Context, unit UnitInfo, tick Tick) {
				if unit.ID == 1 {
					panic("render failed")
				}
			}
			m, err := NewThreadModel(kind, opts)
			require.NoError(t, err)
			for range 3 {
				require.NoError(t, m.CreateForegroundTask())
			}

			// Act
			require.NoError(t, m.RunInteractive(0))
			err = m.JoinInteractive()

			// Assert
			require.ErrorIs(t, err, ErrUnitDropped)
			require.True(t, m.Stats().Broken)
			require.ErrorIs(t, m.RunInteractive(1), ErrModelBroken)
			require.ErrorIs(t, m.JoinInteractive(), ErrModelBroken)
			require.Equal(t, 1, metrics.Dropped())

			require.ErrorIs(t, m.Shutdown(), ErrUnitDropped)
			require.Equal(t, 1, handler.CallCount())
		})
	}
}

// TestPooledModel_BlockingUnitStallsTick verifies a disruptive unit holding the only worker delays a tick
// Given: A pooled model with one worker, two foreground units and one disruptive unit sleeping 300ms
// When: One tick is driven
// Then: Join is held up by the disruptive sleep but still completes
func TestPooledModel_BlockingUnitStallsTick(t *testing.T) {
	// Arrange
	opts := fastOptions()
	opts.PoolWorkers = 1
	opts.EvilSleep = 300 * time.Millisecond
	m := NewPooledModel(opts)
	defer m.Shutdown()

	require.NoError(t, m.CreateForegroundTask())
	require.NoError(t, m.CreateForegroundTask())
	require.NoError(t, m.CreateEvilTask())
	require.Eventually(t, func() bool { return m.Pool().ActiveTaskCount() == 1 }, time.Second, time.Millisecond)

	// Act
	start := time.Now()
	require.NoError(t, m.RunInteractive(0))
	require.NoError(t, m.JoinInteractive())
	stalled := time.Since(start)

	// Assert
	require.GreaterOrEqual(t, stalled, 150*time.Millisecond)
}

// TestPooledModel_SpareWorkerAvoidsStall verifies the same tick is fast once a worker is free
func TestPooledModel_SpareWorkerAvoidsStall(t *testing.T) {
	opts := fastOptions()
	opts.PoolWorkers = 2
	opts.EvilSleep = 300 * time.Millisecond
	m := NewPooledModel(opts)
	defer m.Shutdown()

	require.NoError(t, m.CreateForegroundTask())
	require.NoError(t, m.CreateEvilTask())
	require.Eventually(t, func() bool { return m.Pool().ActiveTaskCount() == 1 }, time.Second, time.Millisecond)

	start := time.Now()
	require.NoError(t, m.RunInteractive(0))
	require.NoError(t, m.JoinInteractive())

	require.Less(t, time.Since(start), 150*time.Millisecond)
}

// TestPooledModel_ShutdownWaitsForBlockingUnit verifies teardown outlasts a disruptive sleep
// Given: A pooled model with background units and a disruptive unit sleeping 100ms
// When: Shutdown is called
// Then: It returns, the pool is stopped and no unit context remains queued
func TestPooledModel_ShutdownWaitsForBlockingUnit(t *testing.T) {
	// Arrange
	opts := fastOptions()
	opts.PoolWorkers = 2
	opts.EvilSleep = 100 * time.Millisecond
	m := NewPooledModel(opts)

	counter := NewSharedCounter()
	require.NoError(t, m.CreateForegroundTask())
	require.NoError(t, m.CreateBackgroundTask(counter))
	require.NoError(t, m.CreateBackgroundTask(counter))
	require.NoError(t, m.CreateEvilTask())
	require.Equal(t, 3, m.NumBackgroundTasks())
	time.Sleep(20 * time.Millisecond)

	// Act
	require.NoError(t, m.Shutdown())

	// Assert
	stats := m.Pool().Stats()
	require.False(t, stats.Running)
	require.Zero(t, stats.Active)
	require.Zero(t, stats.Delayed)
}

// TestThreadModels_BackgroundWithoutForeground verifies Join drives background work with no foreground units
// Given: A model with 0 foreground units and 1 background unit
// When: JoinInteractive is called once
// Then: The sequential counter moves by exactly 1; the threaded counters move on their own
func TestThreadModels_BackgroundWithoutForeground(t *testing.T) {
	for _, kind := range AllKinds {
		t.Run(kind.Slug(), func(t *testing.T) {
			m, err := NewThreadModel(kind, fastOptions())
			require.NoError(t, err)
			defer m.Shutdown()

			counter := NewSharedCounter()
			require.NoError(t, m.CreateBackgroundTask(counter))
			require.NoError(t, m.JoinInteractive())

			if kind == KindSequentialCooperative {
				require.EqualValues(t, 1, counter.Load())
				return
			}
			require.Eventually(t, func() bool { return counter.Load() > 0 }, 2*time.Second, time.Millisecond)
		})
	}
}

// TestThreadPerTaskModel_FiveForegroundThreads verifies each foreground unit is its own live context
// Given: A thread-per-task model with 5 foreground units
// When: RunInteractive is called
// Then: 5 dedicated contexts are live and Join returns after all 5 completed
func TestThreadPerTaskModel_FiveForegroundThreads(t *testing.T) {
	// Arrange
	h := newCountingHandler()
	opts := fastOptions()
	opts.TickHandler = h.handle
	m := NewThreadPerTaskModel(opts)
	defer m.Shutdown()
	for range 5 {
		require.NoError(t, m.CreateForegroundTask())
	}

	// Act
	require.NoError(t, m.RunInteractive(0))

	// Assert
	require.Equal(t, 5, m.Stats().LiveContexts)
	require.NoError(t, m.JoinInteractive())
	require.EqualValues(t, 5, h.total.Load())
}

// TestThreadModels_NilCounterRejected verifies a background unit cannot be created without a counter
func TestThreadModels_NilCounterRejected(t *testing.T) {
	for _, kind := range AllKinds {
		t.Run(kind.Slug(), func(t *testing.T) {
			m, err := NewThreadModel(kind, fastOptions())
			require.NoError(t, err)
			defer m.Shutdown()

			require.ErrorIs(t, m.CreateBackgroundTask(nil), ErrNilCounter)
			require.Zero(t, m.NumBackgroundTasks())
			require.NoError(t, m.CreateBackgroundTask(NewSharedCounter()))
		})
	}
}

// TestThreadModels_PanickingBackgroundUnitStillShutsDown verifies a dead background unit does not block teardown
// Given: A concurrent model whose background unit panics after its first increment
// When: Shutdown is called
// Then: It returns promptly and reports the panicked unit
func TestThreadModels_PanickingBackgroundUnitStillShutsDown(t *testing.T) {
	for _, kind := range []ThreadModelKind{KindOneThreadPerTask, KindPooledWorkerTasks} {
		t.Run(kind.Slug(), func(t *testing.T) {
			// Arrange
			opts := fastOptions()
			opts.PoolWorkers = 2
			opts.Rand = func(int64) int64 { panic("no entropy") }
			panics := opts.PanicHandler.(*TestPanicHandler)
			m, err := NewThreadModel(kind, opts)
			require.NoError(t, err)

			counter := NewSharedCounter()
			require.NoError(t, m.CreateBackgroundTask(counter))
			require.Eventually(t, func() bool { return panics.CallCount() >= 1 }, 2*time.Second, time.Millisecond)

			// Act
			done := make(chan error, 1)
			go func() { done <- m.Shutdown() }()

			// Assert
			select {
			case err := <-done:
				require.ErrorContains(t, err, "background 0 panicked")
			case <-time.After(3 * time.Second):
				t.Fatal("Shutdown did not return")
			}
			require.EqualValues(t, 1, counter.Load())
		})
	}
}

// TestPooledModel_PanickingDisruptiveUnitStillShutsDown verifies the same for a blocking unit
func TestPooledModel_PanickingDisruptiveUnitStillShutsDown(t *testing.T) {
	opts := fastOptions()
	opts.PoolWorkers = 1
	opts.Rand = func(int64) int64 { panic("no entropy") }
	panics := opts.PanicHandler.(*TestPanicHandler)
	m := NewPooledModel(opts)

	require.NoError(t, m.CreateEvilTask())
	require.Eventually(t, func() bool { return panics.CallCount() >= 1 }, 2*time.Second, time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- m.Shutdown() }()

	select {
	case err := <-done:
		require.ErrorContains(t, err, "evil 0 panicked")
	case <-time.After(3 * time.Second):
		t.Fatal("Shutdown did not return")
	}
}

// TestThreadModels_RunWithoutJoinJoinsPreviousRound verifies back-to-back Runs do not deadlock
// Given: A concurrent model with 2 foreground units and an unjoined round
// When: RunInteractive is called again and then joined
// Then: The second Run returns and every unit rendered both ticks
func TestThreadModels_RunWithoutJoinJoinsPreviousRound(t *testing.T) {
	for _, kind := range []ThreadModelKind{KindOneThreadPerTask, KindPooledWorkerTasks} {
		t.Run(kind.Slug(), func(t *testing.T) {
			// Arrange
			h := newCountingHandler()
			opts := fastOptions()
			opts.PoolWorkers = 2
			opts.TickHandler = h.handle
			m, err := NewThreadModel(kind, opts)
			require.NoError(t, err)
			defer m.Shutdown()

			for range 2 {
				require.NoError(t, m.CreateForegroundTask())
			}
			require.NoError(t, m.RunInteractive(1))

			// Act
			done := make(chan error, 1)
			go func() { done <- m.RunInteractive(2) }()

			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(2 * time.Second):
				t.Fatal("second RunInteractive did not return")
			}
			require.NoError(t, m.JoinInteractive())

			// Assert
			require.EqualValues(t, 4, h.total.Load())
			for id := range 2 {
				require.Equal(t, 2, h.rendersOf(id))
			}
		})
	}
}

// TestPooledModel_JoinIgnoresCompletionsOfUnjoinedRound verifies Join waits for the latest round only
// Given: A pooled model whose first round completed but was never joined
// When: A second round blocks inside its handlers
// Then: JoinInteractive does not return until the second round is released
func TestPooledModel_JoinIgnoresCompletionsOfUnjoinedRound(t *testing.T) {
	// Arrange
	release := make(chan struct{})
	opts := fastOptions()
	opts.PoolWorkers = 2
	opts.TickHandler = func(ctx context.Context, unit UnitInfo, tick Tick) {
		if tick == 2 {
			<-release
		}
	}
	m := NewPooledModel(opts)
	defer m.Shutdown()

	for range 2 {
		require.NoError(t, m.CreateForegroundTask())
	}
	require.NoError(t, m.RunInteractive(1))
	require.Eventually(t, func() bool { return len(m.done) == 2 }, 2*time.Second, time.Millisecond)

	// Act
	require.NoError(t, m.RunInteractive(2))
	joined := make(chan error, 1)
	go func() { joined <- m.JoinInteractive() }()

	// Assert
	select {
	case err := <-joined:
		t.Fatalf("JoinInteractive returned early: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	close(release)

	select {
	case err := <-joined:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("JoinInteractive did not return after release")
	}
}
