package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wesleyorama2/hello-load/internal/performance/engine"
	"github.com/wesleyorama2/hello-load/internal/scenario"
	"github.com/wesleyorama2/hello-load/internal/stub"
)

func newStubServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(stub.New(stub.Config{Latency: 10 * time.Millisecond}, nil).Router())
	t.Cleanup(srv.Close)
	return srv
}

// shortOptions returns the hello options against endpoint, cut to two seconds.
func shortOptions(endpoint string) *engine.TestConfig {
	cfg := scenario.Config{
		ServiceEndpoint:   scenario.Endpoint(endpoint),
		RequestsPerSecond: 20,
		VirtualUsers:      5,
	}
	opts := scenario.Options(&cfg, nil)
	opts.Executor.Duration = 2 * time.Second
	return opts
}

func TestExecute_Passes(t *testing.T) {
	srv := newStubServer(t)
	var out bytes.Buffer

	code, err := execute(context.Background(), shortOptions(srv.URL), runOptions{noColor: true}, &out, zap.NewNop())

	assert.Equal(t, ExitOK, code)
	assert.NoError(t, err)
	assert.Contains(t, out.String(), "hello - Completed")
	assert.Contains(t, out.String(), "status is 200")
	assert.Contains(t, out.String(), "response body is correct")
	assert.NotContains(t, out.String(), "some thresholds have failed")
}

func TestExecute_ThresholdsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	var out bytes.Buffer

	code, err := execute(context.Background(), shortOptions(srv.URL), runOptions{noColor: true}, &out, zap.NewNop())

	assert.Equal(t, ExitThresholdsFailed, code)
	assert.Error(t, err)
	assert.Contains(t, out.String(), "some thresholds have failed")
}

func TestExecute_Quiet(t *testing.T) {
	srv := newStubServer(t)
	var out bytes.Buffer

	code, _ := execute(context.Background(), shortOptions(srv.URL), runOptions{quiet: true}, &out, zap.NewNop())

	assert.Equal(t, ExitOK, code)
	assert.NotContains(t, out.String(), "scenarios:")
	assert.Contains(t, out.String(), "PASSED")
}

func TestExecute_SummaryExport(t *testing.T) {
	srv := newStubServer(t)
	path := filepath.Join(t.TempDir(), "summary.json")

	code, err := execute(context.Background(), shortOptions(srv.URL), runOptions{quiet: true, summaryExport: path}, &bytes.Buffer{}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, ExitOK, code)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var summary struct {
		Name    string            `json:"name"`
		Passed  bool              `json:"passed"`
		Tags    map[string]string `json:"tags"`
		Metrics map[string]struct {
			Values     map[string]float64 `json:"values"`
			Thresholds map[string]bool    `json:"thresholds"`
		} `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(data, &summary))

	assert.Equal(t, "hello", summary.Name)
	assert.True(t, summary.Passed)
	assert.Equal(t, "hello", summary.Tags["test_name"])
	assert.Equal(t, map[string]bool{"p(99)<500": true}, summary.Metrics["http_req_duration"].Thresholds)
	assert.Contains(t, summary.Metrics["http_req_duration"].Values, "p(95)")
}

func TestExecute_SummaryExportBadPath(t *testing.T) {
	srv := newStubServer(t)
	path := filepath.Join(t.TempDir(), "missing", "summary.json")

	code, err := execute(context.Background(), shortOptions(srv.URL), runOptions{quiet: true, summaryExport: path}, &bytes.Buffer{}, zap.NewNop())

	assert.Equal(t, ExitError, code)
	assert.Error(t, err)
}

func TestExecute_InvalidOptions(t *testing.T) {
	opts := shortOptions("http://127.0.0.1:1")
	opts.Thresholds[0].Expressions = []string{"rate>>1"}

	code, err := execute(context.Background(), opts, runOptions{quiet: true}, &bytes.Buffer{}, zap.NewNop())

	assert.Equal(t, ExitError, code)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestExecute_Interrupted(t *testing.T) {
	srv := newStubServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	opts := shortOptions(srv.URL)
	opts.Executor.Duration = time.Minute

	code, err := execute(ctx, opts, runOptions{quiet: true}, &bytes.Buffer{}, zap.NewNop())

	// an interrupted run never exits 0, whatever the thresholds say
	assert.NotEqual(t, ExitOK, code)
	assert.Error(t, err)
}

func TestRunCmd_InvalidEnvironment(t *testing.T) {
	t.Setenv("REQ_PER_SECOND", "fast")
	var stdout, stderr bytes.Buffer

	code := ExecuteArgs([]string{"run", "--quiet"}, &stdout, &stderr)

	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr.String(), "REQ_PER_SECOND")
}

func TestRunCmd_NonPositiveVUs(t *testing.T) {
	t.Setenv("VUS", "0")
	var stdout, stderr bytes.Buffer

	code := ExecuteArgs([]string{"run"}, &stdout, &stderr)

	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr.String(), "VUS")
}
