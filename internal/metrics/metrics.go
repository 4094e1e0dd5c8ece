package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pageset",
			Name:      "mutations_total",
			Help:      "Page-set mutations by operation and result (ok, rejected, noop)",
		},
		[]string{"op", "result"},
	)

	compiles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pageset",
			Name:      "compiles_total",
			Help:      "Compile runs by mode and result",
		},
		[]string{"mode", "result"},
	)

	compileLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pageset",
			Name:      "compile_duration_seconds",
			Help:      "Duration of compile runs by mode",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	pagesEmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pageset",
			Name:      "pages_emitted_total",
			Help:      "Total pages written to compiled outputs",
		},
	)

	thumbnails = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pageset",
			Name:      "thumbnails_rendered_total",
			Help:      "Thumbnail renders by result",
		},
		[]string{"result"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pageset",
			Name:      "active_sessions",
			Help:      "Editing sessions currently held in memory",
		},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(mutations, compiles, compileLatency, pagesEmitted, thumbnails, activeSessions)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func IncMutation(op, result string) { mutations.WithLabelValues(op, result).Inc() }

func ObserveCompile(mode, result string, pages int, dur time.Duration) {
	compiles.WithLabelValues(mode, result).Inc()
	compileLatency.WithLabelValues(mode).Observe(dur.Seconds())
	if pages > 0 {
		pagesEmitted.Add(float64(pages))
	}
}

func IncThumbnail(ok bool) {
	if ok {
		thumbnails.WithLabelValues("ok").Inc()
		return
	}
	thumbnails.WithLabelValues("error").Inc()
}

func SetActiveSessions(n int) { activeSessions.Set(float64(n)) }
