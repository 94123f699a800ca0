package metrics

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nytm/delulu-fortune/internal/fortune"
)

// Metrics holds the prometheus instruments for the fortune service. It
// implements fortune.Counters.
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	viewsTotal         prometheus.Counter
	sharesTotal        prometheus.Counter
	generationsTotal   prometheus.Counter
	generationFailures prometheus.Counter
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
}

// New registers the fortune service instruments on the given registerer.
func New(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fortune_http_requests_total",
			Help: "HTTP requests by endpoint and status class.",
		}, []string{"endpoint", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fortune_http_request_duration_seconds",
			Help:    "HTTP request latency by endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		viewsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "fortune_views_total",
			Help: "Fortunes served.",
		}),
		sharesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "fortune_shares_total",
			Help: "Shares tracked.",
		}),
		generationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "fortune_generations_total",
			Help: "Generation calls to the fortune provider.",
		}),
		generationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "fortune_generation_failures_total",
			Help: "Failed generation calls.",
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "fortune_cache_hits_total",
			Help: "Fortune cache hits.",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "fortune_cache_misses_total",
			Help: "Fortune cache misses.",
		}),
	}
}

// IncView implements fortune.Counters.
func (m *Metrics) IncView() { m.viewsTotal.Inc() }

// IncShare implements fortune.Counters.
func (m *Metrics) IncShare() { m.sharesTotal.Inc() }

// IncCacheHit implements fortune.Counters.
func (m *Metrics) IncCacheHit() { m.cacheHits.Inc() }

// IncCacheMiss implements fortune.Counters.
func (m *Metrics) IncCacheMiss() { m.cacheMisses.Inc() }

// Middleware records request counts and latency per endpoint.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.requestsTotal.WithLabelValues(endpoint, statusBucket(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

// InstrumentGenerator wraps a generator with call and failure counters.
func (m *Metrics) InstrumentGenerator(inner fortune.Generator) fortune.Generator {
	return &instrumentedGenerator{inner: inner, metrics: m}
}

type instrumentedGenerator struct {
	inner   fortune.Generator
	metrics *Metrics
}

func (g *instrumentedGenerator) Generate(ctx context.Context, count int) ([]string, error) {
	g.metrics.generationsTotal.Inc()
	texts, err := g.inner.Generate(ctx, count)
	if err != nil {
		g.metrics.generationFailures.Inc()
	}
	return texts, err
}

func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
