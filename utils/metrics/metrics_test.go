package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestScannerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewScannerMetrics("test", reg)
	require.NotNil(t, m)

	m.Polls.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Polls))

	m.Quotes.WithLabelValues("uniswap", "ok").Add(3)
	m.Quotes.WithLabelValues("uniswap", "error").Inc()
	assert.Equal(t, float64(3), testutil.ToFloat64(m.Quotes.WithLabelValues("uniswap", "ok")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Quotes))

	m.PollDuration.Observe(0.2)
	assert.NotNil(t, m.PollDuration)
}

func TestDispatcherMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDispatcherMetrics("test", reg)

	m.Dispatched.Add(4)
	m.Successes.Add(3)
	m.Failures.WithLabelValues("SlippageExceeded").Inc()
	assert.Equal(t, float64(4), CounterValue(m.Dispatched))
	assert.Equal(t, float64(3), CounterValue(m.Successes))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Failures.WithLabelValues("SlippageExceeded")))
}

func TestNilRegistererUsesPackageRegistry(t *testing.T) {
	m := NewSystemMetrics("test_default", nil)
	m.Goroutines.Set(7)

	families, err := Registry.Gather()
	require.NoError(t, err)

	found := false
	for _, f := range families {
		if f.GetName() == "test_default_system_goroutines" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestHandler(t *testing.T) {
	m := NewFlashLoanMetrics("test_handler", nil)
	m.Selections.WithLabelValues("aave").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_handler_flashloan_provider_selections_total{provider="aave"} 1`)
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Serve(ctx, "127.0.0.1:0", zaptest.NewLogger(t))
	assert.NoError(t, err)
}
