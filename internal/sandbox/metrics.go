package sandbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric names mirror the Result usage fields wall_ms and peak_memory_bytes
// (cpu_ms is not exported), alongside an execution counter and an
// in-flight gauge.
var (
	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vaultlang_sandbox_executions_total",
		Help: "Total sandboxed executions by terminal status",
	}, []string{"status"})

	wallDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vaultlang_sandbox_wall_duration_seconds",
		Help:    "Wall-clock duration of sandboxed executions",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	peakMemoryBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vaultlang_sandbox_peak_memory_bytes",
		Help: "Peak resident memory observed for the most recent execution per program",
	}, []string{"program"})

	activeExecutions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vaultlang_sandbox_active_executions",
		Help: "Number of sandboxed executions currently running",
	})
)

// RecordResult exports a completed Result's usage stats. Call once per
// Execute call, after the terminal state is reached.
func RecordResult(programName string, result *Result) {
	if result == nil {
		return
	}
	status := string(result.Status)
	executionsTotal.WithLabelValues(status).Inc()
	wallDurationSeconds.WithLabelValues(status).Observe(float64(result.Usage.WallMs) / 1000.0)
	if result.Usage.PeakMemoryBytes > 0 {
		peakMemoryBytes.WithLabelValues(programName).Set(float64(result.Usage.PeakMemoryBytes))
	}
}

// TrackActive increments the in-flight execution gauge and returns a
// decrement function to defer at the call site.
func TrackActive() func() {
	activeExecutions.Inc()
	return activeExecutions.Dec
}
