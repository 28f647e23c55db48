package core

import (
	"fmt"
	"time"
)

// seqBackground is one step of background work, run on the driver's goroutine.
type seqBackground struct {
	counter *SharedCounter
}

// SequentialModel runs every unit on the caller's goroutine.
//
// There are no execution contexts to start or join. Foreground units render during
// RunInteractive; background units make exactly one step during JoinInteractive, so
// their sleeps are paid directly inside the driver's tick.
type SequentialModel struct {
	modelBase

	foregroundUnits []UnitInfo
	backgroundUnits []seqBackground
}

var _ ThreadModel = (*SequentialModel)(nil)

func NewSequentialModel(opts Options) *SequentialModel {
	m := &SequentialModel{}
	m.init(KindSequentialCooperative, opts)
	watchDiscard(m, &m.modelBase)
	return m
}

func (m *SequentialModel) CreateForegroundTask() error {
	if err := m.admit(UnitForeground); err != nil {
		return err
	}
	id := len(m.foregroundUnits)
	m.foregroundUnits = append(m.foregroundUnits, UnitInfo{ID: id, Title: fmt.Sprintf("Window %d", id)})
	m.created(UnitForeground)
	return nil
}

func (m *SequentialModel) CreateBackgroundTask(counter *SharedCounter) error {
	if err := m.admit(UnitBackground); err != nil {
		return err
	}
	if counter == nil {
		return errNilCounter()
	}
	m.backgroundUnits = append(m.backgroundUnits, seqBackground{counter: counter})
	m.created(UnitBackground)
	return nil
}

// CreateEvilTask does nothing: with one execution context there is no pool to starve.
func (m *SequentialModel) CreateEvilTask() error {
	return nil
}

// RunInteractive renders every foreground unit in creation order before returning.
// A panicking TickHandler unwinds into the caller.
func (m *SequentialModel) RunInteractive(tick Tick) error {
	if err := m.checkDriving(); err != nil {
		return err
	}
	m.beginTick()
	for _, unit := range m.foregroundUnits {
		m.opts.TickHandler(m.ctx, unit, tick)
	}
	return nil
}

// JoinInteractive has nothing to wait for, so it performs one step of every
// background unit: increment the counter, then sleep a random interval.
func (m *SequentialModel) JoinInteractive() error {
	if err := m.checkDriving(); err != nil {
		return err
	}
	for _, unit := range m.backgroundUnits {
		unit.counter.Inc()
		time.Sleep(m.backgroundSleep())
	}
	m.endTick()
	return nil
}

// Shutdown releases the unit records. Calling it again is a no-op.
func (m *SequentialModel) Shutdown() error {
	return m.teardown(func() error {
		m.foregroundUnits = nil
		m.backgroundUnits = nil
		return nil
	})
}

func (m *SequentialModel) Stats() ModelStats {
	return m.stats()
}
