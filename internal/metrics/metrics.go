// Package metrics содержит метрики Prometheus кассового модуля.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmeshcher/pos-checkout/internal/model"
)

// Checkout собирает метрики попыток оформления продажи.
type Checkout struct {
	Attempts  *prometheus.CounterVec
	CommitMS  prometheus.Histogram
	InFlight  prometheus.Gauge
	Published prometheus.Counter
}

// NewCheckout создаёт и регистрирует метрики в reg.
func NewCheckout(reg prometheus.Registerer) *Checkout {
	m := &Checkout{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pos",
			Subsystem: "checkout",
			Name:      "attempts_total",
			Help:      "Checkout attempts by terminal outcome.",
		}, []string{"outcome"}),
		CommitMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pos",
			Subsystem: "checkout",
			Name:      "commit_duration_ms",
			Help:      "Order ledger commit latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pos",
			Subsystem: "checkout",
			Name:      "in_flight",
			Help:      "Checkout attempts currently running.",
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pos",
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Order events published from the outbox.",
		}),
	}

	reg.MustRegister(m.Attempts, m.CommitMS, m.InFlight, m.Published)
	return m
}

// ObserveOutcome учитывает завершение попытки; err == nil означает успех.
func (m *Checkout) ObserveOutcome(err error) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(Outcome(err)).Inc()
}

// ObserveCommit учитывает длительность записи в журнал.
func (m *Checkout) ObserveCommit(d time.Duration) {
	if m == nil {
		return
	}
	m.CommitMS.Observe(float64(d.Milliseconds()))
}

// Started отмечает попытку, принятую к исполнению.
func (m *Checkout) Started() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

// Finished отмечает завершение принятой попытки.
func (m *Checkout) Finished() {
	if m == nil {
		return
	}
	m.InFlight.Dec()
}

// ObservePublished учитывает опубликованные события.
func (m *Checkout) ObservePublished(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Published.Add(float64(n))
}

// Outcome возвращает метку исхода для ошибки.
func Outcome(err error) string {
	if err == nil {
		return "succeeded"
	}
	switch k := model.Classify(err); {
	case errors.Is(k, model.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(k, model.ErrInsufficientStock), errors.Is(k, model.ErrOutOfStock):
		return "insufficient_stock"
	case errors.Is(k, model.ErrInvalidPayment):
		return "invalid_payment"
	case errors.Is(k, model.ErrConcurrentStockConflict):
		return "stock_conflict"
	case errors.Is(k, model.ErrCheckoutCancelled):
		return "cancelled"
	default:
		return "ledger_unavailable"
	}
}

// Handler возвращает HTTP-обработчик для экспорта метрик из реестра g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
