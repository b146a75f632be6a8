package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics counts money movements and tier changes.
type LedgerMetrics struct {
	commissionCredits  *prometheus.CounterVec
	commissionAmount   prometheus.Counter
	commissionSkipped  *prometheus.CounterVec
	bonusReverts       prometheus.Counter
	payoutTransitions  *prometheus.CounterVec
	discountChanges    *prometheus.CounterVec
	discountDecayFails prometheus.Counter
	orderEvents        *prometheus.CounterVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerMetrics     *LedgerMetrics
)

// Ledger returns the singleton ledger metrics registry.
func Ledger() *LedgerMetrics {
	return LedgerWithConfig(Config{})
}

func LedgerWithConfig(cfg Config) *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerMetrics = newLedgerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return ledgerMetrics
}

func ResetLedgerMetricsForTest() {
	ledgerMetricsOnce = sync.Once{}
	ledgerMetrics = nil
}

func newLedgerMetrics(registerer prometheus.Registerer, cfg Config) *LedgerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := cfg.constLabels()

	return &LedgerMetrics{
		commissionCredits: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ledger_commission_credits_total",
			Help:        "Commission ledger entries written, by ancestor level.",
			ConstLabels: constLabels,
		}, []string{"level"})),
		commissionAmount: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ledger_commission_amount_total",
			Help:        "Sum of commission credited.",
			ConstLabels: constLabels,
		})),
		commissionSkipped: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ledger_commission_skipped_total",
			Help:        "Cascade invocations that credited nothing, by reason.",
			ConstLabels: constLabels,
		}, []string{"reason"})),
		bonusReverts: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ledger_bonus_reverts_total",
			Help:        "Commission ledger entries reverted.",
			ConstLabels: constLabels,
		})),
		payoutTransitions: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ledger_payout_transitions_total",
			Help:        "Payout request status transitions.",
			ConstLabels: constLabels,
		}, []string{"from", "to"})),
		discountChanges: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ledger_discount_level_changes_total",
			Help:        "Discount tier changes, by source and target level.",
			ConstLabels: constLabels,
		}, []string{"from", "to", "cause"})),
		discountDecayFails: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "ledger_discount_decay_errors_total",
			Help:        "Per-user failures during the monthly decay batch.",
			ConstLabels: constLabels,
		})),
		orderEvents: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "ledger_order_events_total",
			Help:        "Order events handled, by type and outcome.",
			ConstLabels: constLabels,
		}, []string{"type", "outcome"})),
	}
}

func (m *LedgerMetrics) IncCommissionCredit(level string, amount float64) {
	if m == nil {
		return
	}
	m.commissionCredits.WithLabelValues(level).Inc()
	if amount > 0 {
		m.commissionAmount.Add(amount)
	}
}

func (m *LedgerMetrics) IncCommissionSkipped(reason string) {
	if m == nil {
		return
	}
	m.commissionSkipped.WithLabelValues(reason).Inc()
}

func (m *LedgerMetrics) AddBonusReverts(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.bonusReverts.Add(float64(count))
}

func (m *LedgerMetrics) IncPayoutTransition(from, to string) {
	if m == nil {
		return
	}
	m.payoutTransitions.WithLabelValues(from, to).Inc()
}

func (m *LedgerMetrics) IncDiscountChange(from, to, cause string) {
	if m == nil {
		return
	}
	m.discountChanges.WithLabelValues(from, to, cause).Inc()
}

func (m *LedgerMetrics) IncDiscountDecayError() {
	if m == nil {
		return
	}
	m.discountDecayFails.Inc()
}

func (m *LedgerMetrics) IncOrderEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.orderEvents.WithLabelValues(eventType, outcome).Inc()
}
