package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
)

// pooledDoneBuffer sizes the completion channel so a finishing unit never parks
// its worker waiting for the driver.
const pooledDoneBuffer = 100_000

// unitExit is a unit's join handle in the pooled model: closed once the unit has
// observed shutdown (or died) and will never run again.
type unitExit struct {
	once     sync.Once
	ch       chan struct{}
	panicked atomic.Bool
}

func newUnitExit() *unitExit {
	return &unitExit{ch: make(chan struct{})}
}

func (e *unitExit) close() {
	e.once.Do(func() { close(e.ch) })
}

// fail closes the handle for a unit whose step panicked.
func (e *unitExit) fail() {
	e.panicked.Store(true)
	e.close()
}

type pooledUnit struct {
	kind   UnitKind
	name   string
	runner *SequencedTaskRunner
	exit   *unitExit
}

type pooledForeground struct {
	pooledUnit
	info UnitInfo
	tick chan Tick
	step Task
}

// PooledModel multiplexes every unit over one bounded GoroutineThreadPool.
//
// Units are cooperative: they run a step, give the worker back and get re-queued.
// Foreground units receive ticks on a capacity-1 channel and answer on a shared
// buffered completion channel. Background units sleep by parking in the pool's delay
// manager. Disruptive units call time.Sleep inside the worker instead, which holds
// that worker for the whole interval; with enough of them nothing else runs.
type PooledModel struct {
	modelBase

	pool    *GoroutineThreadPool
	done    chan struct{}
	dropped *dropSignal

	foregroundUnits []*pooledForeground
	otherUnits      []*pooledUnit

	outstanding int
}

var _ ThreadModel = (*PooledModel)(nil)

func NewPooledModel(opts Options) *PooledModel {
	m := &PooledModel{
		done:    make(chan struct{}, pooledDoneBuffer),
		dropped: newDropSignal(),
	}
	m.init(KindPooledWorkerTasks, opts)

	m.pool = NewGoroutineThreadPoolWithConfig("pooled-model", m.opts.PoolWorkers, &TaskSchedulerConfig{
		PanicHandler:        m.opts.PanicHandler,
		Metrics:             m.opts.Metrics,
		RejectedTaskHandler: &LoggingRejectedTaskHandler{Logger: m.opts.Logger},
	})
	m.pool.Start(context.Background())

	watchDiscard(m, &m.modelBase)
	return m
}

// Pool exposes the worker pool for stats polling.
func (m *PooledModel) Pool() *GoroutineThreadPool {
	return m.pool
}

func (m *PooledModel) newUnit(kind UnitKind, name string) pooledUnit {
	return pooledUnit{
		kind:   kind,
		name:   name,
		runner: NewSequencedTaskRunner(name, m.pool, m.opts.PanicHandler),
		exit:   newUnitExit(),
	}
}

func (m *PooledModel) CreateForegroundTask() error {
	if err := m.admit(UnitForeground); err != nil {
		return err
	}

	id := len(m.foregroundUnits)
	title := fmt.Sprintf("Green thread %d", id)
	unit := &pooledForeground{
		pooledUnit: m.newUnit(UnitForeground, title),
		info:       UnitInfo{ID: id, Title: title},
		tick:       make(chan Tick, 1),
	}
	unit.step = pooledForegroundStep(m.ctx, m.flag, unit.info, unit.tick, m.done, unit.exit, m.dropped, m.opts.TickHandler)

	m.foregroundUnits = append(m.foregroundUnits, unit)
	m.created(UnitForeground)
	return nil
}

// pooledForegroundStep consumes at most one tick per run. It exits once the tick
// channel is closed or the flag is set.
func pooledForegroundStep(ctx context.Context, flag *ShutdownFlag, info UnitInfo, ticks <-chan Tick, done chan<- struct{}, exit *unitExit, dropped *dropSignal, handler TickHandler) Task {
	return func(_ context.Context) {
		if flag.IsSet() {
			exit.close()
			return
		}

		var tick Tick
		select {
		case t, ok := <-ticks:
			if !ok {
				exit.close()
				return
			}
			tick = t
		default:
			return
		}

		finished := false
		defer func() {
			if !finished {
				dropped.fire(info)
				exit.close()
			}
		}()
		handler(ctx, info, tick)
		finished = true

		select {
		case done <- struct{}{}:
		case <-ctx.Done():
		}
	}
}

func (m *PooledModel) CreateBackgroundTask(counter *SharedCounter) error {
	if err := m.admit(UnitBackground); err != nil {
		return err
	}
	if counter == nil {
		return errNilCounter()
	}

	unit := m.newUnit(UnitBackground, fmt.Sprintf("background %d", len(m.otherUnits)))
	flag, runner, exit := m.flag, unit.runner, unit.exit
	rnd, limit := m.opts.Rand, int64(m.opts.MaxSleep)

	var step Task
	step = func(_ context.Context) {
		if flag.IsSet() {
			exit.close()
			return
		}
		finished := false
		defer func() {
			if !finished {
				exit.fail()
			}
		}()
		counter.Inc()
		d := time.Duration(rnd(limit))
		finished = true

		// Yield: park in the delay manager instead of holding the worker.
		runner.PostDelayedTaskWithTraits(step, d, TraitsBackground())
	}
	runner.PostTaskWithTraits(step, TraitsBackground())

	m.otherUnits = append(m.otherUnits, &unit)
	m.created(UnitBackground)
	return nil
}

// CreateEvilTask adds a unit that blocks its worker for the whole sleep interval
// instead of yielding. It does not touch any counter.
func (m *PooledModel) CreateEvilTask() error {
	if err := m.admit(UnitDisruptive); err != nil {
		return err
	}

	unit := m.newUnit(UnitDisruptive, fmt.Sprintf("evil %d", len(m.otherUnits)))
	flag, runner, exit := m.flag, unit.runner, unit.exit
	evil, rnd, limit := m.opts.EvilSleep, m.opts.Rand, int64(m.opts.MaxSleep)

	var step Task
	step = func(_ context.Context) {
		if flag.IsSet() {
			exit.close()
			return
		}
		finished := false
		defer func() {
			if !finished {
				exit.fail()
			}
		}()
		d := evil
		if d <= 0 {
			d = time.Duration(rnd(limit))
		}
		time.Sleep(d)
		finished = true

		runner.PostTaskWithTraits(step, TraitsDisruptive())
	}
	runner.PostTaskWithTraits(step, TraitsDisruptive())

	m.otherUnits = append(m.otherUnits, &unit)
	m.created(UnitDisruptive)
	return nil
}

// RunInteractive places the tick in every unit's slot and queues a step for it.
// A previous round that was never joined is joined first, so its completions are
// not counted against this one.
func (m *PooledModel) RunInteractive(tick Tick) error {
	if err := m.checkDriving(); err != nil {
		return err
	}
	if m.outstanding > 0 {
		if err := m.JoinInteractive(); err != nil {
			return err
		}
	}
	m.beginTick()
	for _, unit := range m.foregroundUnits {
		select {
		case <-unit.exit.ch:
			return m.drop(unit.info)
		case unit.tick <- tick:
		}
		m.outstanding++
		unit.runner.PostTask(unit.step)
	}
	return nil
}

// JoinInteractive waits for one completion per tick handed out. With every worker
// held by disruptive units this stalls until one of them lets go.
func (m *PooledModel) JoinInteractive() error {
	if err := m.checkDriving(); err != nil {
		return err
	}
	for m.outstanding > 0 {
		select {
		case <-m.done:
			m.outstanding--
		case <-m.dropped.ch:
			return m.drop(m.dropped.unit)
		}
	}
	m.endTick()
	return nil
}

// Shutdown sets the flag, closes every tick channel, waits for every unit to observe
// it and finally stops the pool. Disruptive units observe the flag only after their
// current blocking sleep.
func (m *PooledModel) Shutdown() error {
	return m.teardown(func() error {
		for _, unit := range m.foregroundUnits {
			close(unit.tick)
			// One more step so the unit sees the closed channel.
			unit.runner.PostTask(unit.step)
		}

		var errs *multierror.Error
		for _, unit := range m.foregroundUnits {
			<-unit.exit.ch
			unit.runner.Shutdown()
		}
		for _, unit := range m.otherUnits {
			<-unit.exit.ch
			unit.runner.Shutdown()
			if unit.exit.panicked.Load() {
				errs = multierror.Append(errs, fmt.Errorf("%s panicked", unit.name))
				continue
			}
			m.opts.Logger.Debug("unit exited", F("unit", unit.name), F("kind", unit.kind.String()))
		}
		select {
		case <-m.dropped.ch:
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", m.dropped.unit.Title, ErrUnitDropped))
		default:
		}

		m.pool.Stop()

		m.foregroundUnits = nil
		m.otherUnits = nil
		m.outstanding = 0
		return errs.ErrorOrNil()
	})
}

func (m *PooledModel) Stats() ModelStats {
	return m.stats()
}
