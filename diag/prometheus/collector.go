// Package prometheus adapts diag.Counters to prometheus.Collector for hosts
// that want to expose engine diagnostics on a /metrics endpoint. It is not
// imported by client or server themselves: wiring it in is the host's
// choice, keeping the counters' own package free of a metrics-library
// dependency.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kestrel-automation/modbuscore/diag"
	"github.com/kestrel-automation/modbuscore/pdu"
	"github.com/kestrel-automation/modbuscore/transport"
)

// Collector presents a diag.Counters snapshot as Prometheus metrics.
type Collector struct {
	counters *diag.Counters

	requestsDesc *prometheus.Desc
	errorsDesc   *prometheus.Desc
	droppedDesc  *prometheus.Desc
	totalDesc    *prometheus.Desc
}

// NewCollector builds a Collector over counters, labeled with name (e.g.
// the logical link the engine serves, "rtu0" or "plc-tcp").
func NewCollector(name string, counters *diag.Counters) *Collector {
	constLabels := prometheus.Labels{"link": name}
	return &Collector{
		counters: counters,
		requestsDesc: prometheus.NewDesc(
			"modbuscore_requests_total",
			"Requests issued or served, by function code.",
			[]string{"function"}, constLabels,
		),
		errorsDesc: prometheus.NewDesc(
			"modbuscore_errors_total",
			"Failures observed, by error kind.",
			[]string{"kind"}, constLabels,
		),
		droppedDesc: prometheus.NewDesc(
			"modbuscore_dropped_frames_total",
			"Frames received that matched no outstanding transaction.",
			nil, constLabels,
		),
		totalDesc: prometheus.NewDesc(
			"modbuscore_transactions_total",
			"Total requests processed across all function codes.",
			nil, constLabels,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requestsDesc
	ch <- c.errorsDesc
	ch <- c.droppedDesc
	ch <- c.totalDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.counters.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.CounterValue, float64(snap.Total))
	ch <- prometheus.MustNewConstMetric(c.droppedDesc, prometheus.CounterValue, float64(snap.Dropped))
	for fc, n := range snap.RequestsByFC {
		if n == 0 {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.requestsDesc, prometheus.CounterValue, float64(n), pdu.FunctionCode(fc).String())
	}
	for kind, n := range snap.ErrorsByKind {
		if n == 0 {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.errorsDesc, prometheus.CounterValue, float64(n), transport.Kind(kind).String())
	}
}
