package observer

import (
	"context"
	"strconv"
	"time"

	"edujudge/internal/judge/sandbox/result"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exports sandbox observations as Prometheus metrics.
type PrometheusRecorder struct {
	compiles    *prometheus.CounterVec
	compileTime *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	runTime     *prometheus.HistogramVec
	runMemory   *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the sandbox collectors on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		compiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edujudge",
			Subsystem: "sandbox",
			Name:      "compiles_total",
			Help:      "Compile steps by language and outcome.",
		}, []string{"language", "ok"}),
		compileTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "edujudge",
			Subsystem: "sandbox",
			Name:      "compile_seconds",
			Help:      "Wall time of compile steps.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"language"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edujudge",
			Subsystem: "sandbox",
			Name:      "runs_total",
			Help:      "Program executions by language and verdict.",
		}, []string{"language", "verdict"}),
		runTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "edujudge",
			Subsystem: "sandbox",
			Name:      "run_seconds",
			Help:      "Reported elapsed time of executions.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"language"}),
		runMemory: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "edujudge",
			Subsystem: "sandbox",
			Name:      "run_memory_kb",
			Help:      "Peak memory of executions when measured.",
			Buckets:   prometheus.ExponentialBuckets(1024, 2, 10),
		}, []string{"language"}),
	}
	for _, c := range []prometheus.Collector{r.compiles, r.compileTime, r.runs, r.runTime, r.runMemory} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) ObserveCompile(_ context.Context, language string, ok bool, elapsed time.Duration) {
	r.compiles.WithLabelValues(language, strconv.FormatBool(ok)).Inc()
	r.compileTime.WithLabelValues(language).Observe(elapsed.Seconds())
}

func (r *PrometheusRecorder) ObserveRun(_ context.Context, language string, verdict result.Verdict, elapsed time.Duration, memoryKB int64) {
	r.runs.WithLabelValues(language, string(verdict)).Inc()
	r.runTime.WithLabelValues(language).Observe(elapsed.Seconds())
	if memoryKB > 0 {
		r.runMemory.WithLabelValues(language).Observe(float64(memoryKB))
	}
}
