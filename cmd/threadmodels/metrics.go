package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Swind/go-thread-models/core"
	promexp "github.com/Swind/go-thread-models/observability/prometheus"
)

const metricsNamespace = "threadmodels"

// metricsServer bundles the exporter, the snapshot poller and the /metrics endpoint.
// A nil *metricsServer is valid and does nothing.
type metricsServer struct {
	exporter *promexp.MetricsExporter
	poller   *promexp.SnapshotPoller
	srv      *http.Server
	logger   core.Logger
}

func startMetricsServer(ctx context.Context, addr string, logger core.Logger) (*metricsServer, error) {
	if addr == "" {
		return nil, nil
	}

	reg := prom.NewRegistry()
	exporter, err := promexp.NewMetricsExporter(metricsNamespace, reg, promexp.ExporterOptions{})
	if err != nil {
		return nil, err
	}
	poller, err := promexp.NewSnapshotPoller(reg, time.Second)
	if err != nil {
		return nil, err
	}
	poller.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", core.F("addr", addr), core.F("error", err))
		}
	}()
	logger.Info("serving metrics", core.F("addr", addr))

	return &metricsServer{exporter: exporter, poller: poller, srv: srv, logger: logger}, nil
}

// Metrics returns the core.Metrics sink to plug into model options.
func (m *metricsServer) Metrics() core.Metrics {
	if m == nil {
		return &core.NilMetrics{}
	}
	return m.exporter
}

// Watch exports model's stats, and its pool's stats when it has one.
func (m *metricsServer) Watch(model core.ThreadModel, counter *core.SharedCounter) {
	if m == nil {
		return
	}
	name := model.Kind().Slug()
	m.poller.AddModel(name, model, counter)
	if pooled, ok := model.(*core.PooledModel); ok {
		m.poller.AddPool(name, pooled.Pool())
	}
}

func (m *metricsServer) Unwatch(model core.ThreadModel) {
	if m == nil {
		return
	}
	name := model.Kind().Slug()
	m.poller.RemoveModel(name)
	m.poller.RemovePool(name)
}

func (m *metricsServer) Close() {
	if m == nil {
		return
	}
	m.poller.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.srv.Shutdown(ctx); err != nil {
		m.logger.Warn("metrics server shutdown", core.F("error", err))
	}
}
