package core

import (
	"context"
	"time"
)

// Task is the unit of work (Closure)
type Task func(ctx context.Context)

// =============================================================================
// UnitKind: which role a unit plays inside a thread model
// =============================================================================

type UnitKind int

const (
	// UnitForeground is driven once per external tick and reports completion.
	UnitForeground UnitKind = iota

	// UnitBackground loops on its own: increment the shared counter, sleep, repeat.
	UnitBackground

	// UnitDisruptive blocks its worker instead of yielding.
	// Only observable on a bounded worker pool.
	UnitDisruptive
)

func (k UnitKind) String() string {
	switch k {
	case UnitForeground:
		return "foreground"
	case UnitBackground:
		return "background"
	case UnitDisruptive:
		return "disruptive"
	default:
		return "unknown"
	}
}

// =============================================================================
// TaskTraits: attributes attached to a task posted to the pool
// =============================================================================

type TaskTraits struct {
	Unit     UnitKind
	MayBlock bool
	Category string
}

func DefaultTaskTraits() TaskTraits {
	return TaskTraits{Unit: UnitForeground}
}

func TraitsBackground() TaskTraits {
	return TaskTraits{Unit: UnitBackground}
}

func TraitsDisruptive() TaskTraits {
	return TaskTraits{Unit: UnitDisruptive, MayBlock: true}
}

// =============================================================================
// TaskRunner: task submission interface
// =============================================================================
type TaskRunner interface {
	PostTask(task Task)
	PostTaskWithTraits(task Task, traits TaskTraits)
	PostDelayedTask(task Task, delay time.Duration)
	PostDelayedTaskWithTraits(task Task, delay time.Duration, traits TaskTraits)
}

// ThreadPool is the execution substrate a SequencedTaskRunner posts to.
type ThreadPool interface {
	PostInternal(task Task, traits TaskTraits)
	PostDelayedInternal(task Task, delay time.Duration, traits TaskTraits, target TaskRunner)
}

// =============================================================================
// Context Helper
// =============================================================================
type taskRunnerKeyType struct{}

var taskRunnerKey taskRunnerKeyType

func GetCurrentTaskRunner(ctx context.Context) TaskRunner {
	if v := ctx.Value(taskRunnerKey); v != nil {
		return v.(TaskRunner)
	}
	return nil
}
