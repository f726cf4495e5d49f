// Package metrics exposes Prometheus metrics for the notification bridge.
//
// A *Metrics implements the observer interfaces of the dispatch, callback,
// notify and listener packages, so one value can be wired into every
// component of a runtime instance.
//
// Metrics collected:
//   - kblayout_platform_events_total: events received from the platform source
//   - kblayout_dispatch_enqueued_total: requests accepted by the consumer loop
//   - kblayout_dispatch_executions_total: requests the consumer loop ran
//   - kblayout_callbacks_delivered_total: layout callbacks that actually ran
//   - kblayout_dispatch_dropped_total: requests dropped, by reason
//   - kblayout_callback_dispatch_errors_total: failed callback dispatches, by error
//   - kblayout_registrations_total: callback registrations
//   - kblayout_finalizations_total: callback handles finalized
//   - kblayout_active_callbacks: live callbacks
//   - kblayout_delivery_seconds: time spent running delivered callbacks
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dshills/kblayout/internal/dispatch"
)

// Namespace prefixes every metric name.
const Namespace = "kblayout"

// Additional drop reasons, beyond those reported by the dispatch loop.
const (
	// DropFinalized counts requests against a finalized callback.
	DropFinalized = "finalized"
	// DropOrphaned counts platform events whose state was already gone.
	DropOrphaned = "orphaned"
)

// Metrics holds the Prometheus collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	platformEvents  prometheus.Counter
	enqueued        prometheus.Counter
	executions      prometheus.Counter
	delivered       prometheus.Counter
	dropped         *prometheus.CounterVec
	dispatchErrors  *prometheus.CounterVec
	registrations   prometheus.Counter
	finalizations   prometheus.Counter
	activeCallbacks prometheus.Gauge
	deliverySeconds prometheus.Histogram
}

// Option configures Metrics.
type Option func(*options)

type options struct {
	goCollectors bool
	buckets      []float64
}

// WithRuntimeCollectors adds the Go runtime and process collectors.
func WithRuntimeCollectors() Option {
	return func(o *options) {
		o.goCollectors = true
	}
}

// WithBuckets sets the delivery histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(o *options) {
		o.buckets = buckets
	}
}

// New creates metrics registered on a fresh registry.
func New(opts ...Option) *Metrics {
	o := options{
		buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
	}
	for _, opt := range opts {
		opt(&o)
	}

	reg := prometheus.NewRegistry()
	if o.goCollectors {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		platformEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "platform_events_total",
			Help:      "Total number of layout change events received from the platform source",
		}),

		enqueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dispatch_enqueued_total",
			Help:      "Total number of requests accepted by the consumer loop",
		}),

		executions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dispatch_executions_total",
			Help:      "Total number of requests run to completion on the consumer loop",
		}),

		delivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "callbacks_delivered_total",
			Help:      "Total number of layout change callbacks run on the consumer loop",
		}),

		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "dispatch_dropped_total",
			Help:      "Total number of requests dropped before running, by reason",
		}, []string{"reason"}),

		dispatchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "callback_dispatch_errors_total",
			Help:      "Total number of callback invocations the consumer loop rejected, by error",
		}, []string{"error"}),

		registrations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "registrations_total",
			Help:      "Total number of layout change callback registrations",
		}),

		finalizations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "finalizations_total",
			Help:      "Total number of layout change callbacks finalized",
		}),

		activeCallbacks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_callbacks",
			Help:      "Number of live layout change callbacks",
		}),

		deliverySeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "delivery_seconds",
			Help:      "Time spent running delivered layout change callbacks",
			Buckets:   o.buckets,
		}),
	}
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func errorLabel(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrLoopClosed):
		return dispatch.DropClosed
	case errors.Is(err, dispatch.ErrDispatchTimeout):
		return dispatch.DropTimeout
	default:
		return "other"
	}
}
