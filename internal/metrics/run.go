// Package metrics records the outcome of a homeproxy run on a private
// Prometheus registry. Runs are short-lived, so the registry is written to a
// node_exporter textfile instead of being scraped.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run collects metrics for one invocation.
type Run struct {
	registry *prometheus.Registry
	start    time.Time

	stepDuration *prometheus.GaugeVec
	dnsRecords   *prometheus.CounterVec
	domains      prometheus.Gauge
	success      prometheus.Gauge
	duration     prometheus.Gauge
	lastRun      prometheus.Gauge
}

// NewRun starts the run clock and registers all collectors.
func NewRun() *Run {
	r := &Run{
		registry: prometheus.NewRegistry(),
		start:    time.Now(),
		stepDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "homeproxy_step_duration_seconds",
			Help: "Wall time spent in each step of the last run",
		}, []string{"step"}),
		dnsRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "homeproxy_dns_records_total",
			Help: "DNS reconciliation outcomes by action",
		}, []string{"action"}),
		domains: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "homeproxy_domains_configured",
			Help: "Number of domains routed by the last run",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "homeproxy_last_run_success",
			Help: "1 if the last run succeeded, 0 otherwise",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "homeproxy_last_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "homeproxy_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
	}
	r.registry.MustRegister(r.stepDuration, r.dnsRecords, r.domains, r.success, r.duration, r.lastRun)
	return r
}

// ObserveStep records how long step took.
func (r *Run) ObserveStep(step string, d time.Duration) {
	r.stepDuration.WithLabelValues(step).Set(d.Seconds())
}

// RecordDNS counts one reconciliation outcome.
func (r *Run) RecordDNS(action string) {
	r.dnsRecords.WithLabelValues(action).Inc()
}

func (r *Run) SetDomains(n int) {
	r.domains.Set(float64(n))
}

// Finish stamps the run result.
func (r *Run) Finish(err error) {
	if err == nil {
		r.success.Set(1)
	} else {
		r.success.Set(0)
	}
	r.duration.Set(time.Since(r.start).Seconds())
	r.lastRun.SetToCurrentTime()
}

// Registry exposes the underlying registry.
func (r *Run) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile atomically writes the metrics in text exposition format.
func (r *Run) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
