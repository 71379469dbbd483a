package observability

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Config selects what Setup turns on. Spans log operation timings through StartSpan;
// Metrics builds a private prometheus registry with runtime collectors.
type Config struct {
	Spans   bool
	Metrics bool
}

// ShutdownFunc allows callers to tear down any observability exporters.
type ShutdownFunc func(context.Context) error

// Provider is what Setup hands back. Registry and Metrics are nil when metrics are off;
// a nil *Metrics still accepts every call.
type Provider struct {
	Registry *prometheus.Registry
	Metrics  *Metrics
	Shutdown ShutdownFunc
}

// Gatherer returns the registry as a prometheus.Gatherer, or nil without one.
func (p *Provider) Gatherer() prometheus.Gatherer {
	if p == nil || p.Registry == nil {
		return nil
	}
	return p.Registry
}

var (
	spanMu     sync.RWMutex
	spanLogger *slog.Logger
)

func currentLogger() *slog.Logger {
	spanMu.RLock()
	defer spanMu.RUnlock()
	return spanLogger
}

// Setup installs the span logger and the metrics registry. Shutdown detaches the span
// logger; the registry lives as long as its owner keeps it.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (*Provider, error) {
	p := &Provider{}

	spanMu.Lock()
	spanLogger = nil
	if cfg.Spans {
		spanLogger = logger
	}
	spanMu.Unlock()

	if cfg.Metrics {
		reg := prometheus.NewRegistry()
		if err := reg.Register(collectors.NewGoCollector()); err != nil {
			return nil, err
		}
		if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, err
		}
		p.Registry = reg
		p.Metrics = NewMetrics(reg)
	}

	if logger != nil {
		logger.DebugContext(ctx, "observability ready",
			slog.Bool("spans", cfg.Spans),
			slog.Bool("metrics", cfg.Metrics),
		)
	}

	p.Shutdown = func(context.Context) error {
		spanMu.Lock()
		if spanLogger == logger {
			spanLogger = nil
		}
		spanMu.Unlock()
		return nil
	}
	return p, nil
}
