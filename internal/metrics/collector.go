// Package metrics exposes registry and extension metrics to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mattjoyce/elasticd/internal/elastic"
	"github.com/mattjoyce/elasticd/internal/plugin"
)

const namespace = "elasticd"

// Collector records registry membership, provisioning outcomes and extension calls.
type Collector struct {
	pluginsLoaded   prometheus.Gauge
	provisionTotal  *prometheus.CounterVec
	extensionCalls  *prometheus.CounterVec
	extensionTiming *prometheus.HistogramVec
}

var _ elastic.Observer = (*Collector)(nil)

// NewCollector registers the collector's metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		pluginsLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "plugins_loaded",
			Help:      "Number of registered elastic agent plugins",
		}),
		provisionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provision_total",
			Help:      "Agent creation requests by outcome",
		}, []string{"outcome"}),
		extensionCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extension_calls_total",
			Help:      "Calls across the plugin boundary by operation and status",
		}, []string{"operation", "status"}),
		extensionTiming: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extension_call_duration_seconds",
			Help:      "Duration of calls across the plugin boundary",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"operation"}),
	}
}

// PluginRecorded implements elastic.Observer.
func (c *Collector) PluginRecorded(_ plugin.Descriptor, total int) {
	c.pluginsLoaded.Set(float64(total))
}

// PluginRemoved implements elastic.Observer.
func (c *Collector) PluginRemoved(_ plugin.Descriptor, total int) {
	c.pluginsLoaded.Set(float64(total))
}

// Provisioned implements elastic.Observer.
func (c *Collector) Provisioned(o elastic.Outcome) {
	c.provisionTotal.WithLabelValues(OutcomeLabel(o)).Inc()
}

// ObserveExtensionCall records one call across the plugin boundary.
func (c *Collector) ObserveExtensionCall(operation string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.extensionCalls.WithLabelValues(operation, status).Inc()
	c.extensionTiming.WithLabelValues(operation).Observe(d.Seconds())
}

// OutcomeLabel classifies a provisioning outcome as matched, unmatched or failed.
func OutcomeLabel(o elastic.Outcome) string {
	switch {
	case !o.Matched:
		return "unmatched"
	case o.Err != nil:
		return "failed"
	default:
		return "matched"
	}
}
