// Package metrics exposes scan progress as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mastercactapus/proxscan/scan"
)

type Metrics struct {
	points   *prometheus.CounterVec
	gaps     prometheus.Counter
	settle   prometheus.Histogram
	collect  prometheus.Histogram
	state    *prometheus.GaugeVec
	position prometheus.Gauge
	means    *prometheus.GaugeVec
}

var _ scan.Observer = (*Metrics)(nil)

// New registers the scan metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		points: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "proxscan_points_total",
			Help: "Scan points recorded, by collection outcome.",
		}, []string{"outcome"}),
		gaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxscan_gaps_total",
			Help: "Scan points skipped after a failed collection.",
		}),
		settle: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "proxscan_settle_duration_seconds",
			Help:    "Time from step command to settled axis.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		collect: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "proxscan_collect_duration_seconds",
			Help:    "Time spent collecting one sample batch.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "proxscan_state",
			Help: "1 for the sequencer's current state, 0 otherwise.",
		}, []string{"state"}),
		position: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proxscan_position_mm",
			Help: "Scan axis position of the last recorded point.",
		}),
		means: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "proxscan_channel_mean",
			Help: "Per-channel mean of the last recorded point.",
		}, []string{"channel"}),
	}
	reg.MustRegister(m.points, m.gaps, m.settle, m.collect, m.state, m.position, m.means)
	m.StateChanged(scan.StateIdle)
	return m
}

func (m *Metrics) StateChanged(s scan.State) {
	for _, st := range scan.States {
		v := 0.0
		if st == s {
			v = 1
		}
		m.state.WithLabelValues(string(st)).Set(v)
	}
}

func (m *Metrics) PointRecorded(p scan.Point) {
	m.points.WithLabelValues(p.Outcome.String()).Inc()
	m.position.Set(p.Position)
	if p.Index > 0 {
		m.settle.Observe(p.SettleTime.Seconds())
	}
	m.collect.Observe(p.CollectTime.Seconds())
	if p.Gap {
		m.gaps.Inc()
		return
	}
	for i, v := range p.Summary.Means {
		name, _ := p.Summary.Channel(i)
		m.means.WithLabelValues(name).Set(v)
	}
}
