// Package metrics holds the Prometheus collectors of the desk supervisor.
//
// Every collector is labelled by unit name. The collectors register with the
// default registry and are served by the HTTP API on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hsu_desk"

// Poll results
const (
	PollSuccess = "success"
	PollHTTPErr = "http_error"
	PollFailure = "failure"
)

var (
	// UnitStartsTotal counts successful starts
	UnitStartsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unit_starts_total",
			Help:      "Total number of successful unit starts",
		},
		[]string{"unit"},
	)

	UnitStopsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unit_stops_total",
			Help:      "Total number of requested unit stops",
		},
		[]string{"unit"},
	)

	// UnitExitsTotal counts processes that exited without being asked to
	UnitExitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unit_exits_total",
			Help:      "Total number of unexpected process exits",
		},
		[]string{"unit"},
	)

	SpawnFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spawn_failures_total",
			Help:      "Total number of failed process launches",
		},
		[]string{"unit"},
	)

	UnitsRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unit_running",
			Help:      "1 when the unit is running, 0 otherwise",
		},
		[]string{"unit"},
	)

	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cron_polls_total",
			Help:      "Total number of cron polls by result",
		},
		[]string{"unit", "result"},
	)

	PollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cron_poll_duration_seconds",
			Help:      "Duration of cron polls in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"unit"},
	)

	LogLinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_lines_total",
			Help:      "Total number of output lines collected from units",
		},
		[]string{"unit"},
	)

	LogBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_bytes_total",
			Help:      "Total number of output bytes collected from units",
		},
		[]string{"unit"},
	)
)

func RecordStart(unit string) {
	UnitStartsTotal.WithLabelValues(unit).Inc()
	UnitsRunning.WithLabelValues(unit).Set(1)
}

func RecordStop(unit string) {
	UnitStopsTotal.WithLabelValues(unit).Inc()
	UnitsRunning.WithLabelValues(unit).Set(0)
}

func RecordExit(unit string) {
	UnitExitsTotal.WithLabelValues(unit).Inc()
	UnitsRunning.WithLabelValues(unit).Set(0)
}

func RecordSpawnFailure(unit string) {
	SpawnFailuresTotal.WithLabelValues(unit).Inc()
}

// RecordPoll records one cron call; statusCode is 0 when no response arrived
func RecordPoll(unit string, statusCode int, duration time.Duration) {
	result := PollSuccess
	switch {
	case statusCode == 0:
		result = PollFailure
	case statusCode >= 400:
		result = PollHTTPErr
	}
	PollsTotal.WithLabelValues(unit, result).Inc()
	PollDuration.WithLabelValues(unit).Observe(duration.Seconds())
}

// RecordLogLine matches the stream collector's line observer signature
func RecordLogLine(unit string, bytes int) {
	LogLinesTotal.WithLabelValues(unit).Inc()
	LogBytesTotal.WithLabelValues(unit).Add(float64(bytes))
}
