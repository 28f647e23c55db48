package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-thread-models/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ModelSnapshotProvider provides current model stats snapshots.
type ModelSnapshotProvider interface {
	Stats() core.ModelStats
}

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

type watchedModel struct {
	provider ModelSnapshotProvider
	counter  *core.SharedCounter
}

// SnapshotPoller periodically exports model/pool Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	modelsMu sync.RWMutex
	models   map[string]watchedModel

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	modelUnits   *prom.GaugeVec
	modelLive    *prom.GaugeVec
	modelBroken  *prom.GaugeVec
	modelClosed  *prom.GaugeVec
	modelCounter *prom.GaugeVec

	poolQueued  *prom.GaugeVec
	poolActive  *prom.GaugeVec
	poolDelayed *prom.GaugeVec
	poolWorkers *prom.GaugeVec
	poolRunning *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	modelUnits := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "threadmodels",
		Name:      "model_units",
		Help:      "Units per model and unit kind.",
	}, []string{"model", "kind", "unit"})
	modelLive := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "threadmodels",
		Name:      "model_live_contexts",
		Help:      "Dedicated execution contexts currently running.",
	}, []string{"model", "kind"})
	modelBroken := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "threadmodels",
		Name:      "model_broken",
		Help:      "Model broken by a dropped unit (1=broken, 0=healthy).",
	}, []string{"model", "kind"})
	modelClosed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "threadmodels",
		Name:      "model_closed",
		Help:      "Model shut down (1=closed, 0=open).",
	}, []string{"model", "kind"})
	modelCounter := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "threadmodels",
		Name:      "background_counter",
		Help:      "Shared counter value snapshot.",
	}, []string{"model", "kind"})

	poolQueued := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "threadmodels",
		Name:      "pool_queued",
		Help:      "Queued tasks per pool.",
	}, []string{"pool"})
	poolActive := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "threadmodels",
		Name:      "pool_active",
		Help:      "Tasks holding a worker per pool.",
	}, []string{"pool"})
	poolDelayed := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "threadmodels",
		Name:      "pool_delayed",
		Help:      "Tasks parked in a cooperative sleep per pool.",
	}, []string{"pool"})
	poolWorkers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "threadmodels",
		Name:      "pool_workers",
		Help:      "Worker count per pool.",
	}, []string{"pool"})
	poolRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "threadmodels",
		Name:      "pool_running",
		Help:      "Pool running state (1=running, 0=stopped).",
	}, []string{"pool"})

	var err error
	if modelUnits, err = registerCollector(reg, modelUnits); err != nil {
		return nil, err
	}
	if modelLive, err = registerCollector(reg, modelLive); err != nil {
		return nil, err
	}
	if modelBroken, err = registerCollector(reg, modelBroken); err != nil {
		return nil, err
	}
	if modelClosed, err = registerCollector(reg, modelClosed); err != nil {
		return nil, err
	}
	if modelCounter, err = registerCollector(reg, modelCounter); err != nil {
		return nil, err
	}
	if poolQueued, err = registerCollector(reg, poolQueued); err != nil {
		return nil, err
	}
	if poolActive, err = registerCollector(reg, poolActive); err != nil {
		return nil, err
	}
	if poolDelayed, err = registerCollector(reg, poolDelayed); err != nil {
		return nil, err
	}
	if poolWorkers, err = registerCollector(reg, poolWorkers); err != nil {
		return nil, err
	}
	if poolRunning, err = registerCollector(reg, poolRunning); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:     interval,
		models:       make(map[string]watchedModel),
		pools:        make(map[string]PoolSnapshotProvider),
		modelUnits:   modelUnits,
		modelLive:    modelLive,
		modelBroken:  modelBroken,
		modelClosed:  modelClosed,
		modelCounter: modelCounter,
		poolQueued:   poolQueued,
		poolActive:   poolActive,
		poolDelayed:  poolDelayed,
		poolWorkers:  poolWorkers,
		poolRunning:  poolRunning,
	}, nil
}

// AddModel adds or replaces a model by name. counter may be nil.
func (p *SnapshotPoller) AddModel(name string, provider ModelSnapshotProvider, counter *core.SharedCounter) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "model")
	p.modelsMu.Lock()
	p.models[name] = watchedModel{provider: provider, counter: counter}
	p.modelsMu.Unlock()
}

// RemoveModel stops polling a model. Its last exported values are kept.
func (p *SnapshotPoller) RemoveModel(name string) {
	if p == nil {
		return
	}
	p.modelsMu.Lock()
	delete(p.models, normalizeLabel(name, "model"))
	p.modelsMu.Unlock()
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// RemovePool stops polling a pool.
func (p *SnapshotPoller) RemovePool(name string) {
	if p == nil {
		return
	}
	p.poolsMu.Lock()
	delete(p.pools, normalizeLabel(name, "pool"))
	p.poolsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (p *SnapshotPoller) collectOnce() {
	p.modelsMu.RLock()
	for name, m := range p.models {
		stats := m.provider.Stats()
		kind := stats.Kind.Slug()
		p.modelUnits.WithLabelValues(name, kind, core.UnitForeground.String()).Set(float64(stats.Foreground))
		p.modelUnits.WithLabelValues(name, kind, core.UnitBackground.String()).Set(float64(stats.Background))
		p.modelUnits.WithLabelValues(name, kind, core.UnitDisruptive.String()).Set(float64(stats.Disruptive))
		p.modelLive.WithLabelValues(name, kind).Set(float64(stats.LiveContexts))
		p.modelBroken.WithLabelValues(name, kind).Set(boolGauge(stats.Broken))
		p.modelClosed.WithLabelValues(name, kind).Set(boolGauge(stats.Closed))
		if m.counter != nil {
			p.modelCounter.WithLabelValues(name, kind).Set(float64(m.counter.Load()))
		}
	}
	p.modelsMu.RUnlock()

	p.poolsMu.RLock()
	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolDelayed.WithLabelValues(name).Set(float64(stats.Delayed))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		p.poolRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
	}
	p.poolsMu.RUnlock()
}
