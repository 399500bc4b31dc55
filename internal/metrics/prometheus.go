// Package metrics exposes Prometheus collectors for contract calls,
// purchases, reloads, and HTTP traffic.
package metrics

import (
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/megalucky/internal/domain"
)

// Metrics implements the service and view recorders on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Contract metrics
	contractCalls   *prometheus.CounterVec
	contractLatency *prometheus.HistogramVec

	// Purchase metrics
	purchases *prometheus.CounterVec

	// Reload metrics
	loads       *prometheus.CounterVec
	loadLatency prometheus.Histogram

	// Lottery state
	lotteryID    prometheus.Gauge
	lotteryOpen  prometheus.Gauge
	drawTime     prometheus.Gauge
	drawsSeen    prometheus.Counter
	archiveFails prometheus.Counter

	// HTTP metrics
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	wsClients    prometheus.Gauge
}

// New creates Metrics registered under namespace.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		contractCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "contract_calls_total",
				Help:      "Contract reads and simulations by method and result",
			},
			[]string{"method", "result"},
		),
		contractLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "contract_call_seconds",
				Help:      "Contract call latency",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			},
			[]string{"method"},
		),

		purchases: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "purchases_total",
				Help:      "Ticket purchases by kind and result",
			},
			[]string{"kind", "result"},
		),

		loads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reloads_total",
				Help:      "Full lottery reloads by result",
			},
			[]string{"result"},
		),
		loadLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reload_seconds",
				Help:      "Time to complete all lottery reads",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			},
		),

		lotteryID: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lottery_id",
			Help:      "Current lottery round",
		}),
		lotteryOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lottery_open",
			Help:      "1 while tickets can be bought",
		}),
		drawTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "draw_time_seconds",
			Help:      "Scheduled draw time as a unix timestamp",
		}),
		drawsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draws_completed_total",
			Help:      "Completed draws observed by the watcher",
		}),
		archiveFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "draw_archive_failures_total",
			Help:      "Draw results that could not be archived",
		}),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected websocket clients",
		}),
	}

	registry.MustRegister(
		m.contractCalls, m.contractLatency,
		m.purchases,
		m.loads, m.loadLatency,
		m.lotteryID, m.lotteryOpen, m.drawTime, m.drawsSeen, m.archiveFails,
		m.httpRequests, m.httpLatency, m.wsClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrPurchaseInFlight):
		return "in_flight"
	case errors.Is(err, domain.ErrNoWallet):
		return "no_wallet"
	default:
		return "error"
	}
}

// ObserveCall records one contract read or simulation.
func (m *Metrics) ObserveCall(method string, d time.Duration, err error) {
	m.contractCalls.WithLabelValues(method, result(err)).Inc()
	m.contractLatency.WithLabelValues(method).Observe(d.Seconds())
}

// ObservePurchase records one purchase attempt.
func (m *Metrics) ObservePurchase(kind domain.PurchaseKind, err error) {
	m.purchases.WithLabelValues(string(kind), result(err)).Inc()
}

// ObserveLoad records one full reload.
func (m *Metrics) ObserveLoad(d time.Duration, err error) {
	m.loads.WithLabelValues(result(err)).Inc()
	m.loadLatency.Observe(d.Seconds())
}

// SetSnapshot exports the lottery-wide values of snap.
func (m *Metrics) SetSnapshot(snap domain.LotterySnapshot) {
	m.lotteryID.Set(bigFloat(snap.LotteryID))
	m.drawTime.Set(bigFloat(snap.DrawTime))
	if snap.IsOpen() {
		m.lotteryOpen.Set(1)
	} else {
		m.lotteryOpen.Set(0)
	}
}

// IncDraws counts a completed draw.
func (m *Metrics) IncDraws() { m.drawsSeen.Inc() }

// IncArchiveFailures counts a draw that failed to archive.
func (m *Metrics) IncArchiveFailures() { m.archiveFails.Inc() }

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(route).Observe(d.Seconds())
}

// SetWSClients reports the websocket client count.
func (m *Metrics) SetWSClients(n int) { m.wsClients.Set(float64(n)) }

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		Registry: m.registry,
	})
}

func bigFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
