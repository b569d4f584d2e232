// Package metrics exposes Prometheus collectors for the poll loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Prometheus metric names.
const (
	MetricPollCyclesTotal = "xianyu_poll_cycles_total"
	MetricOrdersTotal     = "xianyu_orders_total"
	MetricCycleDuration   = "xianyu_poll_cycle_duration_seconds"
	MetricDeliveredOrders = "xianyu_delivered_orders"
	metricNamespace       = "xianyu"
	labelResult           = "result"
	labelOutcome          = "outcome"
)

// Cycle results.
const (
	CycleOK      = "ok"
	CycleFailed  = "failed"
	CycleSkipped = "skipped"
)

// Order outcomes.
const (
	OrderDelivered  = "delivered"
	OrderSkipped    = "skipped"
	OrderUnresolved = "unresolved"
	OrderFailed     = "failed"
	OrderParked     = "parked"
)

// Collector owns a private registry so tests and the process never share
// global state.
type Collector struct {
	registry *prometheus.Registry

	cycles          *prometheus.CounterVec
	orders          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	deliveredOrders prometheus.Gauge
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "poll_cycles_total",
				Help:      "Poll cycles by result.",
			},
			[]string{labelResult},
		),
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      "orders_total",
				Help:      "Pending orders seen by the poll loop, by outcome.",
			},
			[]string{labelOutcome},
		),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricNamespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Wall time of a poll cycle.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		deliveredOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "delivered_orders",
			Help:      "Orders with a committed delivery record.",
		}),
	}
	c.registry.MustRegister(c.cycles, c.orders, c.cycleDuration, c.deliveredOrders)
	return c
}

// ObserveCycle records a finished (or refused) cycle.
func (c *Collector) ObserveCycle(result string, elapsed time.Duration) {
	c.cycles.WithLabelValues(result).Inc()
	if result != CycleSkipped {
		c.cycleDuration.Observe(elapsed.Seconds())
	}
}

func (c *Collector) ObserveOrder(outcome string) {
	c.orders.WithLabelValues(outcome).Inc()
}

func (c *Collector) SetDeliveredOrders(n int) {
	c.deliveredOrders.Set(float64(n))
}

// Handler serves the private registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Gather() ([]*dto.MetricFamily, error) {
	return c.registry.Gather()
}
