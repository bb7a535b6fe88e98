package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values shared by the ledger and quote counters.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeNoChange = "no_change"
	OutcomeNotFound = "not_found"
	OutcomeCacheHit = "cache_hit"
)

var (
	registry = prometheus.NewRegistry()

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "path"},
	)

	dbPoolConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_connections_used",
			Help: "Number of database connections in use",
		},
		[]string{"service"},
	)

	dbPoolConnectionsMax = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_connections_max",
			Help: "Maximum number of database connections",
		},
		[]string{"service"},
	)

	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Ledger events handed to the publisher",
		},
		[]string{"topic", "outcome"},
	)

	ledgerOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Portfolio, asset and lot mutations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	quoteFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_fetches_total",
			Help: "Market data lookups by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	valuationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "valuation_duration_seconds",
			Help:    "Wall time of a valuation run",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"scope"},
	)

	valuationSymbolsPriced = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "valuation_symbols_priced",
			Help:    "Distinct symbols quoted per valuation run",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
	)

	reconcileRepairs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_repairs_total",
			Help: "Referential repairs applied by the reconciler",
		},
		[]string{"kind"},
	)
)

func init() {
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registry.MustRegister(httpRequestsTotal)
	registry.MustRegister(httpRequestDuration)

	registry.MustRegister(dbPoolConnections)
	registry.MustRegister(dbPoolConnectionsMax)

	registry.MustRegister(eventsPublished)
	registry.MustRegister(ledgerOperations)
	registry.MustRegister(quoteFetches)
	registry.MustRegister(valuationDuration)
	registry.MustRegister(valuationSymbolsPriced)
	registry.MustRegister(reconcileRepairs)
}

func Registry() *prometheus.Registry {
	return registry
}

// Handler returns a Fiber handler for the /metrics endpoint
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
}

type Config struct {
	ServiceName string
	SkipPaths   []string
}

// Middleware records request counts and latency labelled by route template,
// so /portfolios/:id does not explode label cardinality.
func Middleware(cfg Config) fiber.Handler {
	skipPaths := make(map[string]bool)
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *fiber.Ctx) error {
		if skipPaths[c.Path()] {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		path := c.Route().Path

		httpRequestsTotal.WithLabelValues(cfg.ServiceName, c.Method(), path, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(cfg.ServiceName, c.Method(), path).Observe(time.Since(start).Seconds())

		return err
	}
}

func RecordDBPoolStats(service string, used, max int) {
	dbPoolConnections.WithLabelValues(service).Set(float64(used))
	dbPoolConnectionsMax.WithLabelValues(service).Set(float64(max))
}

func RecordEventPublished(topic string, err error) {
	eventsPublished.WithLabelValues(topic, outcome(err)).Inc()
}

// RecordLedgerOperation counts a mutation such as "lot.add" or "portfolio.rename".
func RecordLedgerOperation(operation, outcome string) {
	ledgerOperations.WithLabelValues(operation, outcome).Inc()
}

func RecordQuoteFetch(source, outcome string) {
	quoteFetches.WithLabelValues(source, outcome).Inc()
}

// RecordValuation observes one net-worth or single-portfolio run.
func RecordValuation(scope string, d time.Duration, symbols int) {
	valuationDuration.WithLabelValues(scope).Observe(d.Seconds())
	valuationSymbolsPriced.Observe(float64(symbols))
}

func RecordReconcileRepairs(kind string, n int) {
	if n <= 0 {
		return
	}
	reconcileRepairs.WithLabelValues(kind).Add(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
