package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-thread-models/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	TickBuckets     []float64
	TeardownBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	tickSeconds       *prom.HistogramVec
	teardownSeconds   *prom.HistogramVec
	unitsCreatedTotal *prom.CounterVec
	unitDroppedTotal  *prom.CounterVec
	taskRejectedTotal *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "threadmodels"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	tickBuckets := opts.TickBuckets
	if len(tickBuckets) == 0 {
		tickBuckets = prom.ExponentialBuckets(0.0001, 4, 10)
	}
	teardownBuckets := opts.TeardownBuckets
	if len(teardownBuckets) == 0 {
		teardownBuckets = prom.DefBuckets
	}

	tickVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "tick_duration_seconds",
		Help:      "Duration of one RunInteractive+JoinInteractive cycle.",
		Buckets:   tickBuckets,
	}, []string{"model"})
	teardownVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "teardown_duration_seconds",
		Help:      "Time Shutdown spent joining every unit.",
		Buckets:   teardownBuckets,
	}, []string{"model"})
	createdVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "units_created_total",
		Help:      "Total number of units created.",
	}, []string{"model", "unit"})
	droppedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "unit_dropped_total",
		Help:      "Total number of foreground units whose execution context died.",
	}, []string{"model"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_rejected_total",
		Help:      "Total number of tasks refused by a pool that was shutting down.",
	}, []string{"pool", "reason"})

	var err error
	if tickVec, err = registerCollector(reg, tickVec); err != nil {
		return nil, err
	}
	if teardownVec, err = registerCollector(reg, teardownVec); err != nil {
		return nil, err
	}
	if createdVec, err = registerCollector(reg, createdVec); err != nil {
		return nil, err
	}
	if droppedVec, err = registerCollector(reg, droppedVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		tickSeconds:       tickVec,
		teardownSeconds:   teardownVec,
		unitsCreatedTotal: createdVec,
		unitDroppedTotal:  droppedVec,
		taskRejectedTotal: rejectedVec,
	}, nil
}

// RecordTick records one driver tick.
func (m *MetricsExporter) RecordTick(kind core.ThreadModelKind, duration time.Duration) {
	if m == nil {
		return
	}
	m.tickSeconds.WithLabelValues(kind.Slug()).Observe(duration.Seconds())
}

// RecordUnitCreated counts a created unit by model and unit kind.
func (m *MetricsExporter) RecordUnitCreated(kind core.ThreadModelKind, unit core.UnitKind) {
	if m == nil {
		return
	}
	m.unitsCreatedTotal.WithLabelValues(kind.Slug(), unit.String()).Inc()
}

// RecordUnitDropped counts a model broken by a dead foreground unit.
func (m *MetricsExporter) RecordUnitDropped(kind core.ThreadModelKind) {
	if m == nil {
		return
	}
	m.unitDroppedTotal.WithLabelValues(kind.Slug()).Inc()
}

// RecordTeardown records how long Shutdown took.
func (m *MetricsExporter) RecordTeardown(kind core.ThreadModelKind, duration time.Duration) {
	if m == nil {
		return
	}
	m.teardownSeconds.WithLabelValues(kind.Slug()).Observe(duration.Seconds())
}

// RecordTaskRejected records task rejection events.
func (m *MetricsExporter) RecordTaskRejected(owner string, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(normalizeLabel(owner, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
