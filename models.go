package threadmodels

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/Swind/go-thread-models/bench"
	"github.com/Swind/go-thread-models/core"
)

// New constructs an empty model of the given kind.
//
// Switching strategy means calling Shutdown on the old model and New for the next
// one; a model is never converted in place.
func New(kind ThreadModelKind, opts Options) (ThreadModel, error) {
	return core.NewThreadModel(kind, opts)
}

// Switch shuts current down (if any) and returns a fresh model of kind.
// The new model is returned whenever construction succeeded, even if err also
// carries teardown errors of current.
func Switch(current ThreadModel, kind ThreadModelKind, opts Options) (ThreadModel, error) {
	var errs *multierror.Error
	if current != nil {
		if err := current.Shutdown(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("shutdown %s: %w", current.Kind(), err))
		}
	}
	next, err := New(kind, opts)
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	return next, errs.ErrorOrNil()
}

// RunBenchmarks runs the overhead benchmark of every strategy and returns the
// report text. It owns its threads and pool and may take seconds; call it off the
// driver's goroutine.
func RunBenchmarks(ctx context.Context, workers, iterations int) (string, error) {
	report, err := bench.RunBenchmarks(ctx, workers, iterations)
	if err != nil {
		return "", err
	}
	return report.String(), nil
}
