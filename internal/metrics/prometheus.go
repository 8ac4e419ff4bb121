package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder with Prometheus collectors.
type PrometheusRecorder struct {
	reg           *prom.Registry
	stageDuration *prom.HistogramVec
	buildDuration *prom.HistogramVec
	pageResults   *prom.CounterVec
	buildOutcome  *prom.CounterVec
	rebuilds      *prom.CounterVec
}

// NewPrometheusRecorder registers its collectors on reg, or on a new registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "toastblog",
			Name:      "stage_duration_seconds",
			Help:      "Duration of build stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		buildDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "toastblog",
			Name:      "build_duration_seconds",
			Help:      "Duration of an app build",
			Buckets:   prom.DefBuckets,
		}, []string{"app"}),
		pageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "toastblog",
			Name:      "pages_total",
			Help:      "Content files processed by result",
		}, []string{"app", "result"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "toastblog",
			Name:      "build_outcomes_total",
			Help:      "Builds by final status",
		}, []string{"outcome"}),
		rebuilds: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "toastblog",
			Name:      "watch_rebuilds_total",
			Help:      "Rebuilds triggered by file changes",
		}, []string{"kind"}),
	}
	reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.pageResults, pr.buildOutcome, pr.rebuilds)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(app string, d time.Duration) {
	p.buildDuration.WithLabelValues(app).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPageResult(app string, result PageResult) {
	p.pageResults.WithLabelValues(app, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcome) {
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncRebuild(kind string) {
	p.rebuilds.WithLabelValues(kind).Inc()
}

// Handler serves the recorder's registry.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
