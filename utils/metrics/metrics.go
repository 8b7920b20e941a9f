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

// Registry holds every collector the process exposes.
var Registry = prometheus.NewRegistry()

func registerer(reg prometheus.Registerer) prometheus.Registerer {
	if reg == nil {
		return Registry
	}
	return reg
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// CounterValue reads the current value of a counter.
func CounterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

type ScannerMetrics struct {
	Polls         prometheus.Counter
	PollDuration  prometheus.Histogram
	Quotes        *prometheus.CounterVec
	CyclesChecked prometheus.Counter
	Opportunities prometheus.Counter
	BestNetProfit prometheus.Gauge
	GasPrice      prometheus.Gauge
}

func NewScannerMetrics(namespace string, reg prometheus.Registerer) *ScannerMetrics {
	f := promauto.With(registerer(reg))
	return &ScannerMetrics{
		Polls: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "polls_total",
			Help:      "Total number of completed poll cycles",
		}),
		PollDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "poll_duration_seconds",
			Help:      "Time taken by one poll cycle",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		Quotes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "quotes_total",
			Help:      "Quote fetches by exchange and status",
		}, []string{"exchange", "status"}),
		CyclesChecked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "cycles_evaluated_total",
			Help:      "Total number of candidate cycles evaluated",
		}),
		Opportunities: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "opportunities_total",
			Help:      "Total number of opportunities emitted",
		}),
		BestNetProfit: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "best_net_profit",
			Help:      "Net profit of the best opportunity of the last poll, in loan asset units",
		}),
		GasPrice: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "gas_price_wei",
			Help:      "Gas price used by the last poll",
		}),
	}
}

type DispatcherMetrics struct {
	Dispatched  prometheus.Counter
	Dropped     *prometheus.CounterVec
	Successes   prometheus.Counter
	Failures    *prometheus.CounterVec
	Resubmits   prometheus.Counter
	InFlight    prometheus.Gauge
	Latency     prometheus.Histogram
	ProfitTotal prometheus.Counter
	SuccessRate prometheus.Gauge
}

func NewDispatcherMetrics(namespace string, reg prometheus.Registerer) *DispatcherMetrics {
	f := promauto.With(registerer(reg))
	return &DispatcherMetrics{
		Dispatched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "dispatched_total",
			Help:      "Total number of opportunities dispatched",
		}),
		Dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "dropped_total",
			Help:      "Opportunities dropped before dispatch, by reason",
		}, []string{"reason"}),
		Successes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "successes_total",
			Help:      "Total number of successful executions",
		}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "failures_total",
			Help:      "Failed executions by reason",
		}, []string{"reason"}),
		Resubmits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "resubmits_total",
			Help:      "Total number of gas bumped resubmissions",
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "in_flight",
			Help:      "1 while a dispatch is awaiting its outcome",
		}),
		Latency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "dispatch_duration_seconds",
			Help:      "Time from submission to terminal outcome",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		ProfitTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "profit_total",
			Help:      "Realized profit summed over all loan assets, in smallest units",
		}),
		SuccessRate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "success_rate",
			Help:      "Share of dispatches that succeeded",
		}),
	}
}

type FlashLoanMetrics struct {
	Selections *prometheus.CounterVec
	Errors     prometheus.Counter
}

func NewFlashLoanMetrics(namespace string, reg prometheus.Registerer) *FlashLoanMetrics {
	f := promauto.With(registerer(reg))
	return &FlashLoanMetrics{
		Selections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flashloan",
			Name:      "provider_selections_total",
			Help:      "Provider selections by provider name",
		}, []string{"provider"}),
		Errors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flashloan",
			Name:      "errors_total",
			Help:      "Total number of provider selection errors",
		}),
	}
}

type SystemMetrics struct {
	Goroutines  prometheus.Gauge
	HeapAlloc   prometheus.Gauge
	HeapObjects prometheus.Gauge
	GCPause     prometheus.Gauge
	Uptime      prometheus.Gauge
}

func NewSystemMetrics(namespace string, reg prometheus.Registerer) *SystemMetrics {
	f := promauto.With(registerer(reg))
	return &SystemMetrics{
		Goroutines: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "goroutines",
			Help:      "Number of goroutines",
		}),
		HeapAlloc: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "heap_alloc_bytes",
			Help:      "Current heap allocation in bytes",
		}),
		HeapObjects: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "heap_objects",
			Help:      "Current number of heap objects",
		}),
		GCPause: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "gc_pause_seconds",
			Help:      "Duration of the most recent GC pause",
		}),
		Uptime: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "uptime_seconds",
			Help:      "Seconds since the process started",
		}),
	}
}
