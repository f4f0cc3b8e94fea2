package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the threat engine.
type Metrics struct {
	Polls            *prometheus.CounterVec // labels: outcome={data,empty,error}
	PollDelay        prometheus.Gauge
	SchedulerRunning prometheus.Gauge
	CachedEvents     prometheus.Gauge

	StreamMessages    prometheus.Counter
	MalformedMessages prometheus.Counter
	StreamConnected   prometheus.Gauge

	Forecasts        *prometheus.CounterVec // labels: outcome={applied,error,stale,disabled}
	ForecastDuration prometheus.Histogram
	TrainingRuns     *prometheus.CounterVec // labels: outcome={started,dropped,error}

	Alerts *prometheus.CounterVec // labels: source, severity
}

// NewMetrics creates and registers all metrics with the default registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Polls,
		m.PollDelay,
		m.SchedulerRunning,
		m.CachedEvents,
		m.StreamMessages,
		m.MalformedMessages,
		m.StreamConnected,
		m.Forecasts,
		m.ForecastDuration,
		m.TrainingRuns,
		m.Alerts,
	)
	return m
}

// NewMetricsForTesting creates unregistered metrics so tests can build as
// many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threat_engine",
			Name:      "polls_total",
			Help:      "Live feed polls by outcome.",
		}, []string{"outcome"}),
		PollDelay: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "threat_engine",
			Name:      "poll_next_delay_seconds",
			Help:      "Delay armed before the next poll.",
		}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "threat_engine",
			Name:      "scheduler_running",
			Help:      "1 while the poll loop is alive.",
		}),
		CachedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "threat_engine",
			Name:      "cached_events",
			Help:      "Events in the threat cache after the last rebuild.",
		}),
		StreamMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "threat_engine",
			Name:      "stream_messages_total",
			Help:      "Reactor telemetry messages applied.",
		}),
		MalformedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "threat_engine",
			Name:      "stream_malformed_messages_total",
			Help:      "Reactor telemetry messages dropped as malformed.",
		}),
		StreamConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "threat_engine",
			Name:      "stream_connected",
			Help:      "1 while the reactor telemetry socket is open.",
		}),
		Forecasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threat_engine",
			Name:      "forecasts_total",
			Help:      "Forecast calls by outcome.",
		}, []string{"outcome"}),
		ForecastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "threat_engine",
			Name:      "forecast_duration_seconds",
			Help:      "Remote forecast round-trip duration.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		TrainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threat_engine",
			Name:      "training_runs_total",
			Help:      "Training triggers by outcome.",
		}, []string{"outcome"}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threat_engine",
			Name:      "alerts_total",
			Help:      "Alerts raised by source and severity.",
		}, []string{"source", "severity"}),
	}
}
