package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusRecorder struct {
	counters  *prometheus.CounterVec
	histogram *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the collectors with reg
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	counters := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainoverflow",
			Name:      "payment_events_total",
			Help:      "Payment gate events by route and outcome",
		},
		[]string{"type", "route", "outcome"},
	)

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chainoverflow",
			Name:      "payment_latency_seconds",
			Help:      "Payment verification latency",
			Buckets:   []float64{.005, .05, .25, 1, 2.5, 5, 10, 20, 45, 60},
		},
		[]string{"operation", "mode", "outcome"},
	)

	reg.MustRegister(counters, histogram)

	return &PrometheusRecorder{
		counters:  counters,
		histogram: histogram,
	}
}

func (p *PrometheusRecorder) IncCounter(name string, labels map[string]string) {
	p.counters.With(prometheus.Labels{
		"type":    name,
		"route":   labels["route"],
		"outcome": labels["outcome"],
	}).Inc()
}

func (p *PrometheusRecorder) ObserveLatency(name string, d time.Duration, labels map[string]string) {
	p.histogram.With(prometheus.Labels{
		"operation": name,
		"mode":      labels["mode"],
		"outcome":   labels["outcome"],
	}).Observe(d.Seconds())
}
