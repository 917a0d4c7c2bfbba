package faucet

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps Prometheus collectors tracking faucet health.
type Metrics struct {
	requests   *prometheus.CounterVec
	dispatch   *prometheus.HistogramVec
	sendErrors *prometheus.CounterVec
	queueDepth prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsReg  *Metrics
)

// FaucetMetrics returns the lazily-initialised metrics registry.
func FaucetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsReg = &Metrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "faucet",
				Name:      "requests_total",
				Help:      "Total faucet requests segmented by chain and admission outcome.",
			}, []string{"chain", "outcome"}),
			dispatch: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "faucet",
				Name:      "dispatch_duration_seconds",
				Help:      "Latency distribution for completed payouts.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"chain"}),
			sendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "faucet",
				Name:      "send_errors_total",
				Help:      "Payout attempts that failed, segmented by chain and reason.",
			}, []string{"chain", "reason"}),
			queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "faucet",
				Name:      "queue_depth",
				Help:      "Number of addresses currently awaiting payout.",
			}),
		}
		prometheus.MustRegister(
			metricsReg.requests,
			metricsReg.dispatch,
			metricsReg.sendErrors,
			metricsReg.queueDepth,
		)
	})
	return metricsReg
}

// RecordRequest counts an admission outcome for chain.
func (m *Metrics) RecordRequest(chain, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(chain, outcome).Inc()
}

// ObserveDispatch records the latency of a completed payout.
func (m *Metrics) ObserveDispatch(chain string, d time.Duration) {
	if m == nil {
		return
	}
	m.dispatch.WithLabelValues(chain).Observe(d.Seconds())
}

// RecordSendError counts a failed payout attempt.
func (m *Metrics) RecordSendError(chain, reason string) {
	if m == nil {
		return
	}
	m.sendErrors.WithLabelValues(chain, reason).Inc()
}

// SetQueueDepth publishes the current queue length.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
