package core

import (
	"sync/atomic"

	"github.com/tevino/abool"
)

// SharedCounter is the aggregate background progress tally.
// Every background unit of a model increments it; the driver only reads it.
// It is never reset.
type SharedCounter struct {
	v atomic.Uint64
}

// NewSharedCounter returns a counter starting at zero.
func NewSharedCounter() *SharedCounter {
	return &SharedCounter{}
}

// Inc adds one and returns the new value.
func (c *SharedCounter) Inc() uint64 {
	return c.v.Add(1)
}

// Load returns the current value.
func (c *SharedCounter) Load() uint64 {
	return c.v.Load()
}

// ShutdownFlag tells every background and disruptive unit of one model to stop.
// It is set once by Shutdown and never cleared.
type ShutdownFlag struct {
	set abool.AtomicBool
}

// NewShutdownFlag returns an unset flag.
func NewShutdownFlag() *ShutdownFlag {
	return &ShutdownFlag{}
}

// Set raises the flag. It reports whether this call was the one that raised it.
func (f *ShutdownFlag) Set() bool {
	return f.set.SetToIf(false, true)
}

// IsSet reports whether shutdown has been signalled.
func (f *ShutdownFlag) IsSet() bool {
	return f.set.IsSet()
}
