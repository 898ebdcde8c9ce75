package metrics

import (
	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/elys-network/yieldvault/internal/ledger"
	"github.com/elys-network/yieldvault/internal/types"
	"github.com/elys-network/yieldvault/internal/utils"
)

const namespace = "yieldvault"

// VaultMetrics exports ledger activity to Prometheus. It is both a ledger EventSink (counting
// successful operations and their amounts) and a ledger Observer (counting every call and
// rejections by error kind).
type VaultMetrics struct {
	decimals int

	events     *prometheus.CounterVec
	amounts    *prometheus.CounterVec
	operations *prometheus.CounterVec
	rejections *prometheus.CounterVec

	tvl         prometheus.Gauge
	totalShares prometheus.Gauge
	sharePrice  prometheus.Gauge
	allocation  *prometheus.GaugeVec
	poolAPY     *prometheus.GaugeVec

	cycles        *prometheus.CounterVec
	plannedMoves  prometheus.Counter
	cycleDuration prometheus.Histogram
}

// New creates the collectors and registers them on reg. decimals converts base-unit amounts to
// display units for the amount series.
func New(reg prometheus.Registerer, decimals int) *VaultMetrics {
	m := &VaultMetrics{
		decimals: decimals,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "events_total",
			Help:      "Successful ledger operations segmented by event type.",
		}, []string{"type"}),
		amounts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "event_amount_total",
			Help:      "Sum of event amounts in display units, segmented by event type.",
		}, []string{"type"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Mutating ledger calls segmented by operation and outcome.",
		}, []string{"operation", "outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rejections_total",
			Help:      "Rejected ledger calls segmented by operation and error kind.",
		}, []string{"operation", "kind"}),
		tvl: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "tvl",
			Help:      "Total value locked in display units.",
		}),
		totalShares: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "total_shares",
			Help:      "Outstanding shares in display units.",
		}),
		sharePrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "share_price",
			Help:      "TVL per share.",
		}),
		allocation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "allocated",
			Help:      "Capital allocated to each pool in display units.",
		}, []string{"pool"}),
		poolAPY: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "apy_bps",
			Help:      "Current APY of each pool in basis points.",
		}, []string{"pool"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "avm",
			Name:      "cycles_total",
			Help:      "AVM cycles segmented by mode and outcome.",
		}, []string{"mode", "outcome"}),
		plannedMoves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "avm",
			Name:      "planned_moves_total",
			Help:      "Rebalance moves planned by the AVM.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "avm",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of AVM cycles.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.events, m.amounts, m.operations, m.rejections,
		m.tvl, m.totalShares, m.sharePrice, m.allocation, m.poolAPY,
		m.cycles, m.plannedMoves, m.cycleDuration,
	)
	return m
}

// Emit implements ledger.EventSink.
func (m *VaultMetrics) Emit(ev types.Event) {
	if m == nil {
		return
	}
	kind := ev.EventType()
	m.events.WithLabelValues(kind).Inc()

	amount := eventAmount(ev)
	if amount.IsNil() {
		return
	}
	if f, err := utils.SDKIntToFloat64(amount, m.decimals); err == nil {
		m.amounts.WithLabelValues(kind).Add(f)
	}
}

func eventAmount(ev types.Event) sdkmath.Int {
	switch e := ev.(type) {
	case types.DepositEvent:
		return e.Amount
	case types.WithdrawalEvent:
		return e.Amount
	case types.RebalanceEvent:
		return e.Amount
	case types.RewardsHarvestedEvent:
		return e.Amount
	}
	return sdkmath.Int{}
}

// ObserveOperation implements ledger.Observer.
func (m *VaultMetrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	if err == nil {
		m.operations.WithLabelValues(op, "success").Inc()
		return
	}
	m.operations.WithLabelValues(op, "rejected").Inc()
	kind := ledger.ErrorKind(err)
	if kind == "" {
		kind = "internal"
	}
	m.rejections.WithLabelValues(op, kind).Inc()
}

// UpdateVault refreshes the aggregate and per-pool gauges.
func (m *VaultMetrics) UpdateVault(g types.Globals, price float64, pools []types.PoolInfo) {
	if m == nil {
		return
	}
	g = g.Normalize()
	if f, err := utils.SDKIntToFloat64(g.TotalTVL, m.decimals); err == nil {
		m.tvl.Set(f)
	}
	if f, err := utils.SDKIntToFloat64(g.TotalShares, m.decimals); err == nil {
		m.totalShares.Set(f)
	}
	m.sharePrice.Set(price)
	for _, p := range pools {
		p = p.Normalize()
		if f, err := utils.SDKIntToFloat64(p.TotalAllocated, m.decimals); err == nil {
			m.allocation.WithLabelValues(p.Name).Set(f)
		}
		m.poolAPY.WithLabelValues(p.Name).Set(float64(p.CurrentAPY))
	}
}

// ObserveCycle records the outcome of one AVM cycle.
func (m *VaultMetrics) ObserveCycle(mode string, moves int, seconds float64, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.cycles.WithLabelValues(mode, outcome).Inc()
	m.plannedMoves.Add(float64(moves))
	m.cycleDuration.Observe(seconds)
}

var (
	_ ledger.EventSink = (*VaultMetrics)(nil)
	_ ledger.Observer  = (*VaultMetrics)(nil)
)
