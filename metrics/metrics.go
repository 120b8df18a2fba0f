// Package metrics exposes the state of a run as Prometheus collectors.
//
// Nothing is served over the network; the collected families can be written
// out in the text exposition format once the run is over.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"github.com/matveylogee/OS-HW2-BMW/rwdb"
)

const namespace = "rwdb"

// Metrics implements rwdb.Observer.
type Metrics struct {
	Operations     *prometheus.CounterVec
	Failures       *prometheus.CounterVec
	ActiveReaders  prometheus.Gauge
	Writers        prometheus.Gauge
	AdmissionShut  prometheus.Gauge
	AccessAcquires *prometheus.CounterVec
	AccessReleases *prometheus.CounterVec
	AdmissionWait  *prometheus.HistogramVec
}

var _ rwdb.Observer = (*Metrics)(nil)

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Completed protected operations.",
		}, []string{"role"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_failures_total",
			Help:      "Workers that stopped on a primitive failure.",
		}, []string{"role"}),
		ActiveReaders: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_readers",
			Help:      "Readers inside their critical section.",
		}),
		Writers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outstanding_writers",
			Help:      "Writers between entry and exit, including those waiting for access.",
		}),
		AdmissionShut: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "admission_closed",
			Help:      "1 while the admission gate is held by writers.",
		}),
		AccessAcquires: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_acquired_total",
			Help:      "Acquisitions of the access permit by holder.",
		}, []string{"holder"}),
		AccessReleases: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_released_total",
			Help:      "Releases of the access permit by holder.",
		}, []string{"holder"}),
		AdmissionWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "admission_wait_seconds",
			Help:      "Time from the start of the entry protocol to the critical section.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"role"}),
	}
}

// ReaderCountChanged sets the active readers gauge.
func (m *Metrics) ReaderCountChanged(n int) { m.ActiveReaders.Set(float64(n)) }

// WriterCountChanged sets the outstanding writers gauge.
func (m *Metrics) WriterCountChanged(n int) { m.Writers.Set(float64(n)) }

// AccessAcquired counts an acquisition of the access permit by holder.
func (m *Metrics) AccessAcquired(holder rwdb.Role) {
	m.AccessAcquires.WithLabelValues(holder.String()).Inc()
}

// AccessReleased counts a release of the access permit by holder.
func (m *Metrics) AccessReleased(holder rwdb.Role) {
	m.AccessReleases.WithLabelValues(holder.String()).Inc()
}

// AdmissionClosed marks the gate as held by writers.
func (m *Metrics) AdmissionClosed() { m.AdmissionShut.Set(1) }

// AdmissionOpened marks the gate as open to readers.
func (m *Metrics) AdmissionOpened() { m.AdmissionShut.Set(0) }

// Operation counts one completed operation of the given role.
func (m *Metrics) Operation(role rwdb.Role) {
	m.Operations.WithLabelValues(role.String()).Inc()
}

// Failure counts one worker of the given role stopped by an error.
func (m *Metrics) Failure(role rwdb.Role) {
	m.Failures.WithLabelValues(role.String()).Inc()
}

// Wait records how long an entry protocol took.
func (m *Metrics) Wait(role rwdb.Role, d time.Duration) {
	m.AdmissionWait.WithLabelValues(role.String()).Observe(d.Seconds())
}

// WriteText writes every family gathered from g in the text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
