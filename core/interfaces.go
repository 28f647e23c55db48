package core

import (
	"context"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling unit panics
// =============================================================================

// PanicHandler is called when a unit or pooled task panics.
// A panicking unit is not restarted; the handler only reports it.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context of the panicked task
	// - owner: The model or pool the task belongs to
	// - workerID: The pool worker ID, or -1 for dedicated threads and the caller's goroutine
	// - panicInfo: The recovered value
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, owner string, workerID int, panicInfo any, stackTrace []byte)
}

// LoggingPanicHandler reports panics through a Logger.
type LoggingPanicHandler struct {
	Logger Logger
}

// HandlePanic logs panic information at error level.
func (h *LoggingPanicHandler) HandlePanic(ctx context.Context, owner string, workerID int, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("task panicked",
		F("owner", owner),
		F("worker", workerID),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting thread model metrics.
// Methods should be non-blocking and fast; they are called on the driver's tick path.
type Metrics interface {
	// RecordTick records one Run+Join cycle of a model.
	RecordTick(kind ThreadModelKind, duration time.Duration)

	// RecordUnitCreated records a successful Create* call.
	RecordUnitCreated(kind ThreadModelKind, unit UnitKind)

	// RecordUnitDropped records a foreground unit whose execution context died.
	RecordUnitDropped(kind ThreadModelKind)

	// RecordTeardown records how long Shutdown took to join every handle.
	RecordTeardown(kind ThreadModelKind, duration time.Duration)

	// RecordTaskRejected records a task refused by a pool that is shutting down.
	RecordTaskRejected(owner string, reason string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTick(kind ThreadModelKind, duration time.Duration)     {}
func (m *NilMetrics) RecordUnitCreated(kind ThreadModelKind, unit UnitKind)       {}
func (m *NilMetrics) RecordUnitDropped(kind ThreadModelKind)                      {}
func (m *NilMetrics) RecordTeardown(kind ThreadModelKind, duration time.Duration) {}
func (m *NilMetrics) RecordTaskRejected(owner string, reason string)              {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when the scheduler refuses a task because it is shutting down.
type RejectedTaskHandler interface {
	HandleRejectedTask(owner string, reason string)
}

// LoggingRejectedTaskHandler logs rejected tasks at debug level.
// Rejections are expected while a pooled model tears down.
type LoggingRejectedTaskHandler struct {
	Logger Logger
}

// HandleRejectedTask logs the rejected task.
func (h *LoggingRejectedTaskHandler) HandleRejectedTask(owner string, reason string) {
	if h.Logger == nil {
		return
	}
	h.Logger.Debug("task rejected", F("owner", owner), F("reason", reason))
}

// =============================================================================
// TaskSchedulerConfig: Configuration for TaskScheduler
// =============================================================================

// TaskSchedulerConfig holds configuration options for TaskScheduler.
// All handlers are optional; if not provided, default implementations will be used.
type TaskSchedulerConfig struct {
	// PanicHandler is called when a task panics. Defaults to LoggingPanicHandler.
	PanicHandler PanicHandler

	// Metrics receives rejection counts. Defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler is called when a task is rejected. Defaults to LoggingRejectedTaskHandler.
	RejectedTaskHandler RejectedTaskHandler
}

// DefaultTaskSchedulerConfig returns a config with default handlers.
func DefaultTaskSchedulerConfig() *TaskSchedulerConfig {
	return &TaskSchedulerConfig{
		PanicHandler:        &LoggingPanicHandler{Logger: NewDefaultLogger()},
		Metrics:             &NilMetrics{},
		RejectedTaskHandler: &LoggingRejectedTaskHandler{},
	}
}
