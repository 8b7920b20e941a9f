package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/michaelpento.lv/flasharb/utils/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestSystemMonitor(t *testing.T) {
	m := metrics.NewSystemMetrics("test", prometheus.NewRegistry())
	mon := NewSystemMonitor(m, 10*time.Millisecond, zaptest.NewLogger(t))

	t.Run("Collect", func(t *testing.T) {
		mon.Collect()
		assert.Greater(t, testutil.ToFloat64(m.Goroutines), float64(0))
		assert.Greater(t, testutil.ToFloat64(m.HeapAlloc), float64(0))
	})

	t.Run("RunStopsOnCancel", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		assert.NoError(t, mon.Run(ctx))
		assert.Greater(t, testutil.ToFloat64(m.Uptime), float64(0))
	})
}
