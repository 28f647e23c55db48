package core

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// ThreadModelKind
// =============================================================================

// ThreadModelKind identifies the scheduling strategy of a ThreadModel.
type ThreadModelKind int

const (
	// KindSequentialCooperative runs every unit on the driver's own goroutine.
	KindSequentialCooperative ThreadModelKind = iota

	// KindOneThreadPerTask gives every unit its own OS thread.
	KindOneThreadPerTask

	// KindPooledWorkerTasks multiplexes units over a bounded worker pool.
	KindPooledWorkerTasks
)

// AllKinds lists every strategy in display order.
var AllKinds = []ThreadModelKind{KindSequentialCooperative, KindOneThreadPerTask, KindPooledWorkerTasks}

// String returns the display name.
func (k ThreadModelKind) String() string {
	switch k {
	case KindSequentialCooperative:
		return "Many to One"
	case KindOneThreadPerTask:
		return "One to One"
	case KindPooledWorkerTasks:
		return "Many to Many"
	default:
		return fmt.Sprintf("ThreadModelKind(%d)", int(k))
	}
}

// Slug returns the short name used on the command line and in metric labels.
func (k ThreadModelKind) Slug() string {
	switch k {
	case KindSequentialCooperative:
		return "sequential"
	case KindOneThreadPerTask:
		return "thread-per-task"
	case KindPooledWorkerTasks:
		return "pooled"
	default:
		return "unknown"
	}
}

// ParseThreadModelKind accepts a slug or a display name, case-insensitively.
func ParseThreadModelKind(s string) (ThreadModelKind, error) {
	for _, k := range AllKinds {
		if strings.EqualFold(s, k.Slug()) || strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrModelClosed is returned by Create* after Shutdown.
	ErrModelClosed = errors.New("thread model is shut down")

	// ErrModelBroken is returned by Run/Join after a unit was dropped.
	ErrModelBroken = errors.New("thread model is broken by a dropped unit")

	// ErrUnitDropped means a foreground unit's execution context terminated outside teardown.
	ErrUnitDropped = errors.New("foreground unit dropped")

	// ErrUnitLimit is returned when Options.MaxUnits would be exceeded.
	ErrUnitLimit = errors.New("unit limit reached")

	// ErrUnknownKind is returned for an unrecognised strategy name or value.
	ErrUnknownKind = errors.New("unknown thread model kind")

	// ErrNilCounter is returned by CreateBackgroundTask without a counter.
	ErrNilCounter = errors.New("background unit needs a counter")
)

func errNilCounter() error {
	return fmt.Errorf("create %s unit: %w", UnitBackground, ErrNilCounter)
}

// =============================================================================
// ThreadModel
// =============================================================================

// Tick is the opaque per-frame value the driver hands to every foreground unit.
// It is passed through unmodified.
type Tick any

// UnitInfo identifies a foreground unit to its TickHandler.
type UnitInfo struct {
	ID    int
	Title string
}

// TickHandler performs one foreground unit's work for one tick.
type TickHandler func(ctx context.Context, unit UnitInfo, tick Tick)

// ThreadModel owns the foreground and background units of one scheduling strategy.
//
// Create*, RunInteractive and JoinInteractive are meant to be called from a single
// driver goroutine. Stats and NumBackgroundTasks may be called from anywhere.
// Shutdown must be called exactly once before the model is dropped.
type ThreadModel interface {
	Kind() ThreadModelKind

	// CreateForegroundTask starts one foreground unit.
	CreateForegroundTask() error

	// CreateBackgroundTask starts one background unit bound to counter.
	// A nil counter fails with ErrNilCounter.
	CreateBackgroundTask(counter *SharedCounter) error

	// CreateEvilTask starts a disruptive unit. Only the pooled model creates one;
	// the others return nil without doing anything.
	CreateEvilTask() error

	// NumBackgroundTasks counts background and disruptive units created so far.
	NumBackgroundTasks() int

	// RunInteractive hands tick to every foreground unit. If the previous round was
	// never joined, it is joined first.
	RunInteractive(tick Tick) error

	// JoinInteractive waits until every tick from the last RunInteractive is acknowledged.
	JoinInteractive() error

	// Shutdown signals the flag, closes every tick channel and joins every handle.
	Shutdown() error

	Stats() ModelStats
}

// =============================================================================
// Options
// =============================================================================

// Options configures a ThreadModel. Zero fields take the DefaultOptions value.
type Options struct {
	// MaxSleep bounds the random sleep of background units: [0, MaxSleep).
	MaxSleep time.Duration

	// EvilSleep is the blocking interval of a disruptive unit.
	// Zero draws from the same range as background units.
	EvilSleep time.Duration

	// PoolWorkers sizes the pooled model's worker pool. Zero means runtime.GOMAXPROCS(0).
	PoolWorkers int

	// MaxUnits caps foreground+background+disruptive units. Zero means no cap.
	MaxUnits int

	TickHandler  TickHandler
	Logger       Logger
	Metrics      Metrics
	PanicHandler PanicHandler

	// Rand returns a value in [0, n). Defaults to math/rand/v2 Int64N.
	Rand func(n int64) int64
}

// DefaultOptions returns the settings of the interactive demo.
func DefaultOptions() Options {
	return Options{
		MaxSleep:    time.Second,
		TickHandler: func(context.Context, UnitInfo, Tick) {},
		Logger:      NewNoOpLogger(),
		Metrics:     &NilMetrics{},
		Rand:        rand.Int64N,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxSleep <= 0 {
		o.MaxSleep = d.MaxSleep
	}
	if o.TickHandler == nil {
		o.TickHandler = d.TickHandler
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
	if o.Metrics == nil {
		o.Metrics = d.Metrics
	}
	if o.PanicHandler == nil {
		o.PanicHandler = &LoggingPanicHandler{Logger: o.Logger}
	}
	if o.Rand == nil {
		o.Rand = d.Rand
	}
	if o.PoolWorkers <= 0 {
		o.PoolWorkers = runtime.GOMAXPROCS(0)
	}
	return o
}

// NewThreadModel constructs an empty model of the given kind.
func NewThreadModel(kind ThreadModelKind, opts Options) (ThreadModel, error) {
	switch kind {
	case KindSequentialCooperative:
		return NewSequentialModel(opts), nil
	case KindOneThreadPerTask:
		return NewThreadPerTaskModel(opts), nil
	case KindPooledWorkerTasks:
		return NewPooledModel(opts), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
	}
}

// =============================================================================
// modelBase: bookkeeping shared by every strategy
// =============================================================================

type modelBase struct {
	kind ThreadModelKind
	opts Options
	flag *ShutdownFlag

	// ctx is cancelled during Shutdown, right after the flag is set.
	ctx    context.Context
	cancel context.CancelFunc

	foreground atomic.Int64
	background atomic.Int64
	disruptive atomic.Int64

	// live is heap-allocated so dedicated threads can update it without
	// keeping the model itself reachable.
	live *atomic.Int32

	broken    atomic.Bool
	tickStart time.Time

	shutdownOnce sync.Once
	shutdownErr  error
}

func (b *modelBase) init(kind ThreadModelKind, opts Options) {
	b.kind = kind
	b.opts = opts.withDefaults()
	b.flag = NewShutdownFlag()
	b.live = new(atomic.Int32)
	b.ctx, b.cancel = context.WithCancel(context.Background())
}

// watchDiscard logs an error if owner is garbage collected before Shutdown.
func watchDiscard[T any](owner *T, b *modelBase) {
	runtime.AddCleanup(owner, func(c discardCheck) {
		if !c.flag.IsSet() {
			c.logger.Error("thread model discarded without Shutdown", F("kind", c.kind.String()))
		}
	}, discardCheck{flag: b.flag, logger: b.opts.Logger, kind: b.kind})
}

type discardCheck struct {
	flag   *ShutdownFlag
	logger Logger
	kind   ThreadModelKind
}

func (b *modelBase) Kind() ThreadModelKind {
	return b.kind
}

func (b *modelBase) NumBackgroundTasks() int {
	return int(b.background.Load() + b.disruptive.Load())
}

// admit checks whether one more unit may be created.
func (b *modelBase) admit(unit UnitKind) error {
	if b.flag.IsSet() {
		return fmt.Errorf("create %s unit: %w", unit, ErrModelClosed)
	}
	if b.opts.MaxUnits > 0 {
		total := b.foreground.Load() + b.background.Load() + b.disruptive.Load()
		if total >= int64(b.opts.MaxUnits) {
			return fmt.Errorf("create %s unit: %w (%d)", unit, ErrUnitLimit, b.opts.MaxUnits)
		}
	}
	return nil
}

func (b *modelBase) created(unit UnitKind) {
	switch unit {
	case UnitForeground:
		b.foreground.Add(1)
	case UnitBackground:
		b.background.Add(1)
	case UnitDisruptive:
		b.disruptive.Add(1)
	}
	b.opts.Metrics.RecordUnitCreated(b.kind, unit)
}

// checkDriving rejects Run/Join on a broken or closed model.
func (b *modelBase) checkDriving() error {
	if b.broken.Load() {
		return ErrModelBroken
	}
	if b.flag.IsSet() {
		return ErrModelClosed
	}
	return nil
}

// drop marks the model broken after a foreground unit died.
func (b *modelBase) drop(unit UnitInfo) error {
	if b.broken.CompareAndSwap(false, true) {
		b.opts.Metrics.RecordUnitDropped(b.kind)
		b.opts.Logger.Error("foreground unit dropped", F("kind", b.kind.String()), F("unit", unit.Title))
	}
	return fmt.Errorf("%s: %w", unit.Title, ErrUnitDropped)
}

func (b *modelBase) beginTick() {
	b.tickStart = time.Now()
}

func (b *modelBase) endTick() {
	if b.tickStart.IsZero() {
		return
	}
	b.opts.Metrics.RecordTick(b.kind, time.Since(b.tickStart))
	b.tickStart = time.Time{}
}

// backgroundSleep draws one background sleep interval.
func (b *modelBase) backgroundSleep() time.Duration {
	return time.Duration(b.opts.Rand(int64(b.opts.MaxSleep)))
}

// teardown runs fn once, records its duration and logs its error.
func (b *modelBase) teardown(fn func() error) error {
	b.shutdownOnce.Do(func() {
		start := time.Now()
		b.flag.Set()
		b.cancel()

		b.shutdownErr = fn()

		elapsed := time.Since(start)
		b.opts.Metrics.RecordTeardown(b.kind, elapsed)
		if b.shutdownErr != nil {
			b.opts.Logger.Error("thread model teardown reported errors",
				F("kind", b.kind.String()), F("error", b.shutdownErr))
			return
		}
		b.opts.Logger.Debug("thread model torn down", F("kind", b.kind.String()), F("elapsed", elapsed))
	})
	return b.shutdownErr
}

func (b *modelBase) stats() ModelStats {
	return ModelStats{
		Kind:         b.kind,
		Foreground:   int(b.foreground.Load()),
		Background:   int(b.background.Load()),
		Disruptive:   int(b.disruptive.Load()),
		LiveContexts: int(b.live.Load()),
		Broken:       b.broken.Load(),
		Closed:       b.flag.IsSet(),
	}
}
