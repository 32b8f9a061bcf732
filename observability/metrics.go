package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// EngineMetrics tracks ledger operation activity and per-bank exposure.
type EngineMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec

	liquidations     prometheus.Counter
	liquidatedValue  prometheus.Counter
	insuranceCredits prometheus.Counter

	utilization    *prometheus.GaugeVec
	totalAssets    *prometheus.GaugeVec
	totalLiability *prometheus.GaugeVec
	shareValue     *prometheus.GaugeVec
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *EngineMetrics
)

// Engine returns the lazily-initialised engine metrics registry.
func Engine() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "astrolend",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Total ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "astrolend",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "astrolend",
				Subsystem: "engine",
				Name:      "liquidations_total",
				Help:      "Count of settled liquidations.",
			}),
			liquidatedValue: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "astrolend",
				Subsystem: "engine",
				Name:      "liquidated_value_total",
				Help:      "Cumulative repaid debt value across liquidations.",
			}),
			insuranceCredits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "astrolend",
				Subsystem: "engine",
				Name:      "insurance_credits_total",
				Help:      "Cumulative collateral routed to insurance funds.",
			}),
			utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "astrolend",
				Subsystem: "bank",
				Name:      "utilization_ratio",
				Help:      "Borrowed over deposited amount per bank.",
			}, []string{"asset"}),
			totalAssets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "astrolend",
				Subsystem: "bank",
				Name:      "total_asset_amount",
				Help:      "Total deposits per bank in asset units.",
			}, []string{"asset"}),
			totalLiability: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "astrolend",
				Subsystem: "bank",
				Name:      "total_liability_amount",
				Help:      "Total borrows per bank in asset units.",
			}, []string{"asset"}),
			shareValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "astrolend",
				Subsystem: "bank",
				Name:      "share_value",
				Help:      "Accrual index per bank segmented by ledger side.",
			}, []string{"asset", "side"}),
		}
		prometheus.MustRegister(
			engineRegistry.operations,
			engineRegistry.latency,
			engineRegistry.liquidations,
			engineRegistry.liquidatedValue,
			engineRegistry.insuranceCredits,
			engineRegistry.utilization,
			engineRegistry.totalAssets,
			engineRegistry.totalLiability,
			engineRegistry.shareValue,
		)
	})
	return engineRegistry
}

// ObserveOperation records the outcome and duration of one ledger operation.
func (m *EngineMetrics) ObserveOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	operation = normalize(operation)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveLiquidation records a settled liquidation.
func (m *EngineMetrics) ObserveLiquidation(repaidValue, insuranceAmount decimal.Decimal) {
	if m == nil {
		return
	}
	m.liquidations.Inc()
	m.liquidatedValue.Add(repaidValue.InexactFloat64())
	m.insuranceCredits.Add(insuranceAmount.InexactFloat64())
}

// SetBankExposure refreshes the per-bank gauges after an operation commits.
func (m *EngineMetrics) SetBankExposure(asset string, utilization, totalAssets, totalLiabilities, assetShareValue, liabilityShareValue decimal.Decimal) {
	if m == nil {
		return
	}
	asset = normalize(asset)
	m.utilization.WithLabelValues(asset).Set(utilization.InexactFloat64())
	m.totalAssets.WithLabelValues(asset).Set(totalAssets.InexactFloat64())
	m.totalLiability.WithLabelValues(asset).Set(totalLiabilities.InexactFloat64())
	m.shareValue.WithLabelValues(asset, "asset").Set(assetShareValue.InexactFloat64())
	m.shareValue.WithLabelValues(asset, "liability").Set(liabilityShareValue.InexactFloat64())
}

func normalize(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "unknown"
	}
	return label
}
