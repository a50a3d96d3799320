// Package metrics exposes engine activity to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/iwvelando/loan-engine/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Collector owns a private registry so tests and multiple servers never
// collide on the default one. A nil *Collector records nothing.
type Collector struct {
	registry          *prometheus.Registry
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	paymentAmount     *prometheus.HistogramVec
	loanBalance       *prometheus.GaugeVec
	cardUtilization   *prometheus.GaugeVec
	logger            *zap.Logger
}

// NewCollector registers the engine metrics on a fresh registry.
func NewCollector(logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_engine_operations_total",
			Help: "Account operations by name and outcome",
		}, []string{"operation", "outcome"}),
		operationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loan_engine_operation_duration_seconds",
			Help:    "Time taken to run an account operation",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		paymentAmount: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loan_engine_payment_amount",
			Help:    "Distribution of applied payment amounts",
			Buckets: []float64{10, 50, 100, 500, 1000, 2500, 5000, 10000, 50000},
		}, []string{"kind"}),
		loanBalance: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loan_engine_loan_balance",
			Help: "Current outstanding loan balance",
		}, []string{"loan_id"}),
		cardUtilization: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loan_engine_card_utilization_percent",
			Help: "Credit card balance as a percentage of its limit",
		}, []string{"card_id"}),
		logger: logger,
	}
}

// Outcome classifies an operation error for the outcome label. Validation and
// state failures count as rejections.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidInstallment),
		errors.Is(err, domain.ErrOverpayment),
		errors.Is(err, domain.ErrCreditLimitExceeded),
		errors.Is(err, domain.ErrLoanInactive),
		errors.Is(err, domain.ErrLoanPaidOff),
		errors.Is(err, domain.ErrCardInactive):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}

// RecordOperation counts one operation and observes its duration.
func (m *Collector) RecordOperation(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := Outcome(err)
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())

	if outcome == OutcomeError {
		m.logger.Warn("operation failed",
			zap.String("op", "metrics.RecordOperation"),
			zap.String("operation", operation),
			zap.Error(err),
		)
	}
}

// ObservePayment records an applied payment amount.
func (m *Collector) ObservePayment(kind string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.paymentAmount.WithLabelValues(kind).Observe(amount.InexactFloat64())
}

// SetLoanBalance publishes a loan's outstanding balance.
func (m *Collector) SetLoanBalance(loan domain.LoanAccount) {
	if m == nil {
		return
	}
	m.loanBalance.WithLabelValues(loan.ID.String()).Set(loan.CurrentBalance.InexactFloat64())
}

// SetCardUtilization publishes a card's utilization.
func (m *Collector) SetCardUtilization(card domain.CreditCard) {
	if m == nil {
		return
	}
	m.cardUtilization.WithLabelValues(card.ID.String()).Set(card.Utilization().InexactFloat64())
}

// Handler serves the collector's registry.
func (m *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
