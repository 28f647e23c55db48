// Package threadmodels compares three ways of running many small concurrent units
// behind one ThreadModel interface.
//
// A driver creates foreground units (driven once per tick and joined before the next
// tick) and background units (autonomous loops bumping a shared counter), then calls
// RunInteractive and JoinInteractive once per frame.
//
// # Strategies
//
// KindSequentialCooperative ("Many to One"): every unit runs on the driver's goroutine.
// Background units make exactly one step inside JoinInteractive, so their sleeps are
// paid inside the driver's tick.
//
// KindOneThreadPerTask ("One to One"): every unit owns a goroutine locked to its own
// OS thread. Ticks and completions travel over unbuffered channels.
//
// KindPooledWorkerTasks ("Many to Many"): units are sequences of tasks multiplexed
// over a bounded GoroutineThreadPool. Background units sleep cooperatively by parking
// in the pool's delay manager. A disruptive unit (CreateEvilTask) sleeps inside the
// worker instead and, with enough of them, starves every foreground unit.
//
// # Lifecycle
//
// Shutdown is explicit and idempotent: it sets the shutdown flag, closes every tick
// channel and joins every unit. A model that is garbage collected without Shutdown
// logs an error.
//
// # Example
//
//	import (
//		"context"
//
//		threadmodels "github.com/Swind/go-thread-models"
//	)
//
//	func main() {
//		opts := threadmodels.DefaultOptions()
//		opts.TickHandler = func(ctx context.Context, unit threadmodels.UnitInfo, tick threadmodels.Tick) {
//			// render unit for this frame
//		}
//
//		model, err := threadmodels.New(threadmodels.KindPooledWorkerTasks, opts)
//		if err != nil {
//			panic(err)
//		}
//		defer model.Shutdown()
//
//		counter := threadmodels.NewSharedCounter()
//		_ = model.CreateForegroundTask()
//		_ = model.CreateBackgroundTask(counter)
//
//		for frame := 0; frame < 60; frame++ {
//			_ = model.RunInteractive(frame)
//			_ = model.JoinInteractive()
//		}
//	}
//
// RunBenchmarks measures the dispatch overhead of the three strategies on an
// identical synthetic workload.
package threadmodels
