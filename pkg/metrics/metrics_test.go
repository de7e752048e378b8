package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cachi0001/Biz-sub011/pkg/metrics"
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "test")

	m.FetchCompleted("hit")
	m.FetchCompleted("hit")
	m.FetchCompleted("error")
	m.FetchRetried()
	m.FetchShared()
	m.DecisionMade("create_invoice", "LIMIT_REACHED", false, false)
	m.SyncCompleted("applied")
	m.ObserveHTTP("GET", "/check/{action}", 200, 15*time.Millisecond)

	count, err := testutil.GatherAndCount(reg,
		"test_fetch_calls_total",
		"test_fetch_retries_total",
		"test_fetch_shared_total",
		"test_enforcement_decisions_total",
		"test_subscription_syncs_total",
		"test_http_requests_total",
		"test_http_request_duration_seconds",
	)
	require.NoError(t, err)
	assert.Equal(t, 8, count)

	problems, err := testutil.GatherAndLint(reg)
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestMetrics_Nil(t *testing.T) {
	t.Parallel()

	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.FetchCompleted("hit")
		m.FetchRetried()
		m.FetchShared()
		m.DecisionMade("a", "OK", true, false)
		m.SyncCompleted("applied")
		m.ObserveHTTP("GET", "/", 200, time.Millisecond)
	})
}

func TestMetrics_DuplicateRegistrationPanics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics.New(reg, "dup")
	assert.Panics(t, func() { metrics.New(reg, "dup") })
}
