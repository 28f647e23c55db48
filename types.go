package threadmodels

import "github.com/Swind/go-thread-models/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the threadmodels package for most use cases.

// ThreadModel owns the units of one scheduling strategy
type ThreadModel = core.ThreadModel

// ThreadModelKind identifies a strategy
type ThreadModelKind = core.ThreadModelKind

// Options configures a ThreadModel
type Options = core.Options

// ModelStats is a point-in-time snapshot of a ThreadModel
type ModelStats = core.ModelStats

// SharedCounter is the background progress tally shared by every background unit
type SharedCounter = core.SharedCounter

// Tick is the opaque per-frame value handed to foreground units
type Tick = core.Tick

// UnitInfo identifies a foreground unit
type UnitInfo = core.UnitInfo

// TickHandler renders one foreground unit for one tick
type TickHandler = core.TickHandler

// Logger, Metrics and PanicHandler are the pluggable ambient services
type (
	Logger       = core.Logger
	Metrics      = core.Metrics
	PanicHandler = core.PanicHandler
)

// Strategy constants
const (
	KindSequentialCooperative = core.KindSequentialCooperative
	KindOneThreadPerTask      = core.KindOneThreadPerTask
	KindPooledWorkerTasks     = core.KindPooledWorkerTasks
)

// Errors
var (
	ErrModelClosed = core.ErrModelClosed
	ErrModelBroken = core.ErrModelBroken
	ErrUnitDropped = core.ErrUnitDropped
	ErrUnitLimit   = core.ErrUnitLimit
	ErrUnknownKind = core.ErrUnknownKind
	ErrNilCounter  = core.ErrNilCounter
)

// Convenience functions
var (
	DefaultOptions       = core.DefaultOptions
	NewSharedCounter     = core.NewSharedCounter
	ParseThreadModelKind = core.ParseThreadModelKind
)
