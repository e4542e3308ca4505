package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

// Cycle outcomes
const (
	OutcomeNoOpportunity = "no_opportunity"
	OutcomeExecuted      = "executed"
	OutcomeDryRun        = "dry_run"
	OutcomeQuoteFailed   = "quote_failed"
	OutcomeLegFailed     = "leg_failed"
	OutcomePartial       = "partial"
)

// ArbitrageMetrics tracks controller and execution activity
type ArbitrageMetrics struct {
	Ticks            prometheus.Counter
	DroppedTicks     prometheus.Counter
	Cycles           *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	QuoteLatency     *prometheus.HistogramVec
	QuoteErrors      *prometheus.CounterVec
	Approvals        *prometheus.CounterVec
	Swaps            *prometheus.CounterVec
	GasUsed          prometheus.Histogram
	LastProfit       *prometheus.GaugeVec
	PartialPositions prometheus.Counter
	State            prometheus.Gauge
}

// NewArbitrageMetrics registers the arbitrage metrics with reg
func NewArbitrageMetrics(namespace string, reg prometheus.Registerer) *ArbitrageMetrics {
	factory := promauto.With(reg)

	return &ArbitrageMetrics{
		Ticks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of scheduler ticks",
		}),
		DroppedTicks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_ticks_total",
			Help:      "Ticks dropped because a cycle was still running",
		}),
		Cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed cycles by outcome",
		}, []string{"outcome"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time taken by a full cycle",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		QuoteLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_latency_seconds",
			Help:      "Router quote latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"exchange"}),
		QuoteErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_errors_total",
			Help:      "Failed router quotes",
		}, []string{"exchange"}),
		Approvals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "Allowance checks by result",
		}, []string{"result"}),
		Swaps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swaps_total",
			Help:      "Swaps by exchange and result",
		}, []string{"exchange", "result"}),
		GasUsed: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "swap_gas_used",
			Help:      "Gas used per swap",
			Buckets:   prometheus.ExponentialBuckets(21000, 2, 6),
		}),
		LastProfit: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_profit",
			Help:      "Most recent profit score per direction",
		}, []string{"direction"}),
		PartialPositions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partial_positions_total",
			Help:      "Cycles that stopped after the first leg confirmed",
		}),
		State: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "controller_state",
			Help:      "Controller state (0 idle, 1 evaluating, 2 executing)",
		}),
	}
}

// Summary is a point-in-time view of the counters, logged at shutdown
type Summary struct {
	Ticks            float64
	DroppedTicks     float64
	Executed         float64
	NoOpportunity    float64
	Failed           float64
	PartialPositions float64
}

// Summary reads the current counter values
func (m *ArbitrageMetrics) Summary() Summary {
	return Summary{
		Ticks:         counterValue(m.Ticks),
		DroppedTicks:  counterValue(m.DroppedTicks),
		Executed:      counterValue(m.Cycles.WithLabelValues(OutcomeExecuted)),
		NoOpportunity: counterValue(m.Cycles.WithLabelValues(OutcomeNoOpportunity)),
		Failed: counterValue(m.Cycles.WithLabelValues(OutcomeQuoteFailed)) +
			counterValue(m.Cycles.WithLabelValues(OutcomeLegFailed)),
		PartialPositions: counterValue(m.PartialPositions),
	}
}

// counterValue sums every counter sample exposed by c
func counterValue(c prometheus.Collector) float64 {
	ch := make(chan prometheus.Metric, 16)
	go func() {
		c.Collect(ch)
		close(ch)
	}()

	var total float64
	for metric := range ch {
		pb := &dto.Metric{}
		if err := metric.Write(pb); err == nil && pb.Counter != nil {
			total += pb.Counter.GetValue()
		}
	}
	return total
}

// Serve exposes /metrics and /healthz on addr until ctx is done
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, log *zap.Logger) {
	if addr == "" {
		log.Info("Metrics disabled: empty addr")
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("Metrics server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server error", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("Metrics server shutdown error", zap.Error(err))
		}
	}()
}
