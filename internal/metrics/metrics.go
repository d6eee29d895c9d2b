// Package metrics exports strategy loop, executor and event pipeline
// counters in the Prometheus text format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/polystrat/internal/domain"
	"github.com/alanyoungcy/polystrat/internal/eventsink"
	"github.com/alanyoungcy/polystrat/internal/executor"
	"github.com/alanyoungcy/polystrat/internal/strategy"
)

const namespace = "polystrat"

// LatencyBuckets are the order placement latency buckets in seconds.
var LatencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

var _ strategy.Metrics = (*Metrics)(nil)

// Metrics owns a private registry so tests and multiple engines in one
// process never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	orders       *prometheus.CounterVec
	orderLatency *prometheus.HistogramVec
	decisions    *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	cycles       *prometheus.CounterVec
	cash         *prometheus.GaugeVec
	locked       *prometheus.GaugeVec
	realized     *prometheus.GaugeVec
	open         *prometheus.GaugeVec
}

// New registers the loop metrics plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Orders sent to the execution gateway.",
		}, []string{"strategy", "side", "result"}),
		orderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_latency_seconds",
			Help:      "Order placement latency.",
			Buckets:   LatencyBuckets,
		}, []string{"strategy", "side"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Evaluated opportunities by verdict.",
		}, []string{"strategy", "verdict"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_rejections_total",
			Help:      "Entries refused by admission control.",
		}, []string{"strategy", "reason"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Strategy cycles by result.",
		}, []string{"strategy", "result"}),
		cash:     portfolioGauge("cash_dollars", "Free cash."),
		locked:   portfolioGauge("locked_dollars", "Capital locked in open positions."),
		realized: portfolioGauge("realized_pnl_dollars", "Realized profit and loss."),
		open:     portfolioGauge("open_positions", "Open positions."),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.orders, m.orderLatency, m.decisions, m.rejections, m.cycles,
		m.cash, m.locked, m.realized, m.open,
	)
	return m
}

func portfolioGauge(name, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "portfolio",
		Name:      name,
		Help:      help,
	}, []string{"strategy"})
}

// Registry exposes the registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry on /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// OrderPlaced counts a placement and observes its latency.
func (m *Metrics) OrderPlaced(strategy string, side domain.OrderSide, ok bool, latency time.Duration) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.orders.WithLabelValues(strategy, string(side), result).Inc()
	m.orderLatency.WithLabelValues(strategy, string(side)).Observe(latency.Seconds())
}

// Decision counts one recorded opportunity.
func (m *Metrics) Decision(strategy string, verdict domain.Verdict) {
	m.decisions.WithLabelValues(strategy, string(verdict)).Inc()
}

// Rejected counts an admission refusal.
func (m *Metrics) Rejected(strategy, reason string) {
	m.rejections.WithLabelValues(strategy, reason).Inc()
}

// Cycle counts a finished cycle and sets the portfolio gauges.
func (m *Metrics) Cycle(strategy string, err error, pf domain.Portfolio, open int) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.cycles.WithLabelValues(strategy, result).Inc()
	m.cash.WithLabelValues(strategy).Set(pf.Cash)
	m.locked.WithLabelValues(strategy).Set(pf.Locked)
	m.realized.WithLabelValues(strategy).Set(pf.RealizedPnL)
	m.open.WithLabelValues(strategy).Set(float64(open))
}

// ObserveExecutor exports the executor guard counters, read at scrape
// time.
func (m *Metrics) ObserveExecutor(stats func() executor.Stats) {
	counter := func(name, help string, pick func(executor.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(pick(stats())) })
	}
	m.registry.MustRegister(
		counter("placed_total", "Orders forwarded to the venue.", func(s executor.Stats) uint64 { return s.Placed }),
		counter("rejected_total", "Orders refused by the guard.", func(s executor.Stats) uint64 { return s.Rejected }),
		counter("duplicates_total", "Orders suppressed as duplicates.", func(s executor.Stats) uint64 { return s.Duplicates }),
		counter("cancelled_total", "Orders cancelled.", func(s executor.Stats) uint64 { return s.Cancelled }),
	)
}

// ObserveRecorder exports the batch recorder counters.
func (m *Metrics) ObserveRecorder(stats func() eventsink.RecorderStats) {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: namespace, Subsystem: "recorder", Name: name, Help: help}
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts(opts("queued", "Records waiting for a flush.")),
			func() float64 { return float64(stats().Queued) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts(opts("written_total", "Records written to the store.")),
			func() float64 { return float64(stats().Written) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts(opts("evicted_total", "Records evicted from a full queue.")),
			func() float64 { return float64(stats().Evicted) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts(opts("failed_total", "Records lost to write errors.")),
			func() float64 { return float64(stats().Failed) }),
	)
}

// ObserveBus exports per-subscriber drop counts of the event bus.
func (m *Metrics) ObserveBus(dropped func() map[string]uint64) {
	m.registry.MustRegister(&droppedCollector{
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "bus", "dropped_total"),
			"Events dropped because a subscriber was full.",
			[]string{"subscriber"}, nil,
		),
		dropped: dropped,
	})
}

// droppedCollector turns a subscriber map into one series per subscriber.
type droppedCollector struct {
	desc    *prometheus.Desc
	dropped func() map[string]uint64
}

func (c *droppedCollector) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

func (c *droppedCollector) Collect(ch chan<- prometheus.Metric) {
	for name, n := range c.dropped() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(n), name)
	}
}
