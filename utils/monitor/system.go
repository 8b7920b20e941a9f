package monitor

import (
	"context"
	"runtime"
	"time"

	"github.com/michaelpento.lv/flasharb/utils/metrics"
	"go.uber.org/zap"
)

// SystemMonitor samples Go runtime statistics into gauges.
type SystemMonitor struct {
	logger   *zap.Logger
	metrics  *metrics.SystemMetrics
	interval time.Duration
	started  time.Time
}

// NewSystemMonitor creates a monitor sampling every interval.
func NewSystemMonitor(m *metrics.SystemMetrics, interval time.Duration, logger *zap.Logger) *SystemMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &SystemMonitor{
		logger:   logger,
		metrics:  m,
		interval: interval,
		started:  time.Now(),
	}
}

// Run samples until ctx is done.
func (m *SystemMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Collect()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Collect()
		}
	}
}

// Collect takes one sample.
func (m *SystemMonitor) Collect() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))
	m.metrics.HeapAlloc.Set(float64(memStats.HeapAlloc))
	m.metrics.HeapObjects.Set(float64(memStats.HeapObjects))
	m.metrics.GCPause.Set(float64(memStats.PauseNs[(memStats.NumGC+255)%256]) / float64(time.Second))
	m.metrics.Uptime.Set(time.Since(m.started).Seconds())

	m.logger.Debug("Collected runtime metrics",
		zap.Int("goroutines", runtime.NumGoroutine()),
		zap.Uint64("heap_alloc", memStats.HeapAlloc))
}
