// Package metrics exposes Prometheus instruments for the alert pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the daemon. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	PriceSamples      *prometheus.CounterVec
	Alerts            *prometheus.CounterVec
	SpeakRequests     *prometheus.CounterVec
	Utterances        *prometheus.CounterVec
	FirstAudioLatency prometheus.Histogram
	PrefixClips       prometheus.Gauge
	Checkpoint        prometheus.Gauge
}

// NewMetrics registers every instrument on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PriceSamples: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_samples_total",
			Help:      "Price samples read from shared memory by result.",
		}, []string{"result"}),
		Alerts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts raised by kind.",
		}, []string{"kind"}),
		SpeakRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speak_requests_total",
			Help:      "Speak requests by outcome.",
		}, []string{"outcome"}),
		Utterances: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Finished playback workers by result.",
		}, []string{"result"}),
		FirstAudioLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "first_audio_latency_ms",
			Help:      "Latency from speak request to first synthesized chunk in milliseconds.",
			Buckets:   []float64{25, 50, 100, 200, 300, 500, 700, 1000, 2000},
		}),
		PrefixClips: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "prefix_clips",
			Help:      "Number of cached lead-in clips.",
		}),
		Checkpoint: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "checkpoint_price",
			Help:      "Current alert checkpoint price.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObservePriceSample(result string) {
	if m == nil {
		return
	}
	m.PriceSamples.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveAlert(kind string, checkpoint float64) {
	if m == nil {
		return
	}
	m.Alerts.WithLabelValues(kind).Inc()
	m.Checkpoint.Set(checkpoint)
}

func (m *Metrics) ObserveSpeak(outcome string) {
	if m == nil {
		return
	}
	m.SpeakRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveUtterance(result string) {
	if m == nil {
		return
	}
	m.Utterances.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveFirstAudioLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.FirstAudioLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) SetPrefixClips(n int) {
	if m == nil {
		return
	}
	m.PrefixClips.Set(float64(n))
}
