package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics. A nil *Registry is valid and
// records nothing, so components can be built without metrics in tests.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Business metrics
	cacheLookups      *prometheus.CounterVec
	upstreamRequests  *prometheus.CounterVec
	loadDuration      *prometheus.HistogramVec
	sessionsActive    prometheus.Gauge
	browseFailures    *prometheus.CounterVec
	browsePatterns    prometheus.Gauge
	boundaryFallbacks *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	// Business metrics
	r.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candlescope_cache_lookups_total",
			Help: "Cache lookups by entry kind and result",
		},
		[]string{"kind", "result"},
	)
	r.upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candlescope_upstream_requests_total",
			Help: "Requests to the pattern API by endpoint and status class",
		},
		[]string{"endpoint", "status"},
	)
	r.loadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "candlescope_load_duration_seconds",
			Help:    "Symbol load duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"source"},
	)
	r.sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "candlescope_sessions_active",
			Help: "Number of open dashboard websocket sessions",
		},
	)
	r.browseFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candlescope_browse_symbol_failures_total",
			Help: "Symbols that failed during browse aggregation",
		},
		[]string{"symbol"},
	)
	r.browsePatterns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "candlescope_browse_patterns",
			Help: "Number of patterns in the last browse aggregation",
		},
	)
	r.boundaryFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candlescope_boundary_fallbacks_total",
			Help: "Render failures caught by an error boundary",
		},
		[]string{"boundary"},
	)

	reg.MustRegister(r.cacheLookups)
	reg.MustRegister(r.upstreamRequests)
	reg.MustRegister(r.loadDuration)
	reg.MustRegister(r.sessionsActive)
	reg.MustRegister(r.browseFailures)
	reg.MustRegister(r.browsePatterns)
	reg.MustRegister(r.boundaryFallbacks)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	if r == nil {
		return
	}
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	if r == nil {
		return
	}
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	if r == nil {
		return
	}
	r.httpRequestsInFlight.Dec()
}

// RecordCacheLookup records a cache hit or miss for an entry kind.
func (r *Registry) RecordCacheLookup(kind string, hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(kind, result).Inc()
}

// RecordUpstream records one pattern API call. status 0 means the request
// never got a response.
func (r *Registry) RecordUpstream(endpoint string, status int) {
	if r == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = statusToString(status)
	}
	r.upstreamRequests.WithLabelValues(endpoint, label).Inc()
}

// RecordLoad records how long a symbol load took and where it was served from.
func (r *Registry) RecordLoad(source string, duration float64) {
	if r == nil {
		return
	}
	r.loadDuration.WithLabelValues(source).Observe(duration)
}

// SessionOpened increments the active session gauge.
func (r *Registry) SessionOpened() {
	if r == nil {
		return
	}
	r.sessionsActive.Inc()
}

// SessionClosed decrements the active session gauge.
func (r *Registry) SessionClosed() {
	if r == nil {
		return
	}
	r.sessionsActive.Dec()
}

// RecordBrowseFailure counts a symbol skipped during aggregation.
func (r *Registry) RecordBrowseFailure(symbol string) {
	if r == nil {
		return
	}
	r.browseFailures.WithLabelValues(symbol).Inc()
}

// SetBrowsePatterns sets the size of the aggregated pattern list.
func (r *Registry) SetBrowsePatterns(n int) {
	if r == nil {
		return
	}
	r.browsePatterns.Set(float64(n))
}

// RecordFallback counts a render failure caught by the named boundary.
func (r *Registry) RecordFallback(boundary string) {
	if r == nil {
		return
	}
	r.boundaryFallbacks.WithLabelValues(boundary).Inc()
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
