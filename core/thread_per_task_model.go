package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

// dropSignal is closed the first time any foreground unit of a model dies.
// It lives outside the model so unit goroutines never reference the model.
type dropSignal struct {
	once sync.Once
	ch   chan struct{}
	unit UnitInfo
}

func newDropSignal() *dropSignal {
	return &dropSignal{ch: make(chan struct{})}
}

func (d *dropSignal) fire(unit UnitInfo) {
	d.once.Do(func() {
		d.unit = unit
		close(d.ch)
	})
}

type threadForeground struct {
	info   UnitInfo
	thread *DedicatedThread
	tick   chan Tick
}

// ThreadPerTaskModel gives every unit its own OS thread.
//
// Foreground threads block on an unbuffered tick channel, so RunInteractive is a true
// rendezvous with each of them. Completions come back on one shared unbuffered
// channel in whatever order the threads finish. Nothing is pooled: every unit adds
// one thread.
type ThreadPerTaskModel struct {
	modelBase

	done    chan struct{}
	dropped *dropSignal

	foregroundUnits []*threadForeground
	backgroundUnits []*DedicatedThread

	// outstanding is the number of ticks handed out by the last RunInteractive.
	outstanding int
}

var _ ThreadModel = (*ThreadPerTaskModel)(nil)

func NewThreadPerTaskModel(opts Options) *ThreadPerTaskModel {
	m := &ThreadPerTaskModel{
		done:    make(chan struct{}),
		dropped: newDropSignal(),
	}
	m.init(KindOneThreadPerTask, opts)
	watchDiscard(m, &m.modelBase)
	return m
}

func (m *ThreadPerTaskModel) CreateForegroundTask() error {
	if err := m.admit(UnitForeground); err != nil {
		return err
	}

	id := len(m.foregroundUnits)
	unit := &threadForeground{
		info: UnitInfo{ID: id, Title: fmt.Sprintf("OS thread %d", id)},
		tick: make(chan Tick),
	}
	unit.thread = StartDedicatedThread(unit.info.Title, m.live, m.opts.PanicHandler,
		threadForegroundLoop(m.ctx, unit.info, unit.tick, m.done, m.dropped, m.opts.TickHandler))

	m.foregroundUnits = append(m.foregroundUnits, unit)
	m.created(UnitForeground)
	return nil
}

// threadForegroundLoop renders one tick per receive until the tick channel closes.
// A completion send gives up once ctx is cancelled, so a unit whose tick was never
// joined still exits at teardown.
func threadForegroundLoop(ctx context.Context, info UnitInfo, ticks <-chan Tick, done chan<- struct{}, dropped *dropSignal, handler TickHandler) func() {
	return func() {
		exited := false
		defer func() {
			if !exited {
				dropped.fire(info)
			}
		}()

		for tick := range ticks {
			handler(ctx, info, tick)
			select {
			case done <- struct{}{}:
			case <-ctx.Done():
				exited = true
				return
			}
		}
		exited = true
	}
}

func (m *ThreadPerTaskModel) CreateBackgroundTask(counter *SharedCounter) error {
	if err := m.admit(UnitBackground); err != nil {
		return err
	}
	if counter == nil {
		return errNilCounter()
	}

	id := len(m.backgroundUnits)
	flag, sleep := m.flag, m.backgroundSleepFunc()
	thread := StartDedicatedThread(fmt.Sprintf("background %d", id), m.live, m.opts.PanicHandler, func() {
		for !flag.IsSet() {
			counter.Inc()
			time.Sleep(sleep())
		}
	})

	m.backgroundUnits = append(m.backgroundUnits, thread)
	m.created(UnitBackground)
	return nil
}

// backgroundSleepFunc captures the sleep source without capturing the model.
func (m *ThreadPerTaskModel) backgroundSleepFunc() func() time.Duration {
	rnd, limit := m.opts.Rand, int64(m.opts.MaxSleep)
	return func() time.Duration {
		return time.Duration(rnd(limit))
	}
}

// CreateEvilTask does nothing: an OS thread that blocks only blocks itself.
func (m *ThreadPerTaskModel) CreateEvilTask() error {
	return nil
}

// RunInteractive blocks on each unit in turn until it accepts the tick.
// Units of an unjoined round are still parked on the completion send, so that round
// is joined first.
func (m *ThreadPerTaskModel) RunInteractive(tick Tick) error {
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
		case <-unit.thread.Done():
			return m.drop(unit.info)
		default:
		}
		select {
		case unit.tick <- tick:
			m.outstanding++
		case <-unit.thread.Done():
			return m.drop(unit.info)
		}
	}
	return nil
}

// JoinInteractive receives one completion per tick handed out by RunInteractive.
func (m *ThreadPerTaskModel) JoinInteractive() error {
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

// Shutdown sets the flag, closes every tick channel and joins every thread.
// Background threads notice the flag within one sleep interval.
func (m *ThreadPerTaskModel) Shutdown() error {
	return m.teardown(func() error {
		for _, unit := range m.foregroundUnits {
			close(unit.tick)
		}

		var errs *multierror.Error
		for _, unit := range m.foregroundUnits {
			unit.thread.Join()
			if unit.thread.Panicked() {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", unit.info.Title, ErrUnitDropped))
			}
		}
		for _, thread := range m.backgroundUnits {
			thread.Join()
			if thread.Panicked() {
				errs = multierror.Append(errs, fmt.Errorf("%s panicked", thread.Name()))
			}
		}

		m.foregroundUnits = nil
		m.backgroundUnits = nil
		m.outstanding = 0
		return errs.ErrorOrNil()
	})
}

func (m *ThreadPerTaskModel) Stats() ModelStats {
	return m.stats()
}
