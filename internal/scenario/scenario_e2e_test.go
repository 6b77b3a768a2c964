package scenario

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/hello-load/internal/performance/engine"
	"github.com/wesleyorama2/hello-load/internal/performance/metrics"
	"github.com/wesleyorama2/hello-load/internal/stub"
)

func newStub(t *testing.T, latency time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(stub.New(stub.Config{Latency: latency}, nil).Router())
	t.Cleanup(srv.Close)
	return srv
}

func runScenario(t *testing.T, opts *engine.TestConfig) *engine.TestResult {
	t.Helper()
	eng, err := engine.NewEngine(opts)
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	return result
}

func TestScenario_FullMinute(t *testing.T) {
	if testing.Short() {
		t.Skip("runs for one minute")
	}

	srv := newStub(t, 50*time.Millisecond)
	cfg := Config{ServiceEndpoint: Endpoint(srv.URL), RequestsPerSecond: 10, VirtualUsers: 5}

	result := runScenario(t, Options(&cfg, nil))

	assert.True(t, result.Passed)
	for _, tr := range result.Thresholds {
		assert.True(t, tr.Passed, "%s %s: %s", tr.Metric, tr.Expression, tr.Message)
	}

	snap := result.Metrics
	assert.Equal(t, 1.0, snap.Metric(metrics.Checks).Values["rate"])
	assert.GreaterOrEqual(t, snap.Metric(metrics.HTTPReqs).Values["rate"], 9.0)
	assert.InDelta(t, 600, snap.Metric(metrics.HTTPReqs).Values["count"], 5)
	assert.Zero(t, snap.Metric(metrics.DroppedIterations).Values["count"])
	assert.Equal(t, "hello", result.Tags["test_name"])
}

func TestScenario_Short(t *testing.T) {
	srv := newStub(t, 50*time.Millisecond)
	cfg := Config{ServiceEndpoint: Endpoint(srv.URL), RequestsPerSecond: 10, VirtualUsers: 5}

	opts := Options(&cfg, nil)
	opts.Executor.Duration = 2 * time.Second

	result := runScenario(t, opts)

	assert.True(t, result.Passed)
	snap := result.Metrics
	assert.Equal(t, 1.0, snap.Metric(metrics.Checks).Values["rate"])
	assert.InDelta(t, 20, snap.Metric(metrics.HTTPReqs).Values["count"], 2)
	assert.GreaterOrEqual(t, snap.Metric(metrics.HTTPReqDuration).Values["min"], 50.0)
}

func TestScenario_UndersizedPoolDropsIterations(t *testing.T) {
	srv := newStub(t, 300*time.Millisecond)
	cfg := Config{ServiceEndpoint: Endpoint(srv.URL), RequestsPerSecond: 20, VirtualUsers: 1}

	opts := Options(&cfg, nil)
	opts.Executor.Duration = time.Second

	result := runScenario(t, opts)

	// one VU finishes roughly three iterations a second against 20/s
	assert.False(t, result.Passed)
	assert.Greater(t, result.DroppedIterations, int64(10))
	assert.Equal(t, 1.0, result.Metrics.Metric(metrics.Checks).Values["rate"])

	for _, tr := range result.Thresholds {
		if tr.Metric == metrics.HTTPReqs {
			assert.False(t, tr.Passed)
		}
	}
}
