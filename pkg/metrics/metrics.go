package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stockres"

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

// NewServerMetrics registers the HTTP collectors under the service's
// subsystem. Dashes in service are not valid in metric names and become
// underscores.
func NewServerMetrics(reg prometheus.Registerer, service string) *ServerMetrics {
	service = strings.ReplaceAll(service, "-", "_")
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"route", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"route"})

	reg.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

func (m *ServerMetrics) Observe(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(route).Observe(float64(elapsed.Milliseconds()))
}

// Engine counts order lifecycle outcomes. A nil *Engine is a valid no-op.
type Engine struct {
	created        prometheus.Counter
	canceled       *prometheus.CounterVec
	paid           prometheus.Counter
	stockRejected  prometheus.Counter
	reclaimOutcome *prometheus.CounterVec
}

func NewEngine(reg prometheus.Registerer) *Engine {
	e := &Engine{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "orders", Name: "created_total",
			Help: "Orders created with stock reserved.",
		}),
		canceled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "orders", Name: "canceled_total",
			Help: "Orders canceled, by reason.",
		}, []string{"reason"}),
		paid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "orders", Name: "paid_total",
			Help: "Orders marked paid.",
		}),
		stockRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "orders", Name: "stock_rejections_total",
			Help: "Order creations rejected for insufficient stock.",
		}),
		reclaimOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reclaimer", Name: "orders_total",
			Help: "Per-order outcomes of reclamation passes.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(e.created, e.canceled, e.paid, e.stockRejected, e.reclaimOutcome)
	return e
}

func (e *Engine) OrderCreated() {
	if e != nil {
		e.created.Inc()
	}
}

func (e *Engine) OrderCanceled(reason string) {
	if e != nil {
		e.canceled.WithLabelValues(reason).Inc()
	}
}

func (e *Engine) OrderPaid() {
	if e != nil {
		e.paid.Inc()
	}
}

func (e *Engine) StockRejected() {
	if e != nil {
		e.stockRejected.Inc()
	}
}

func (e *Engine) Reclaimed(outcome string, n int) {
	if e != nil && n > 0 {
		e.reclaimOutcome.WithLabelValues(outcome).Add(float64(n))
	}
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
