package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func clearScenarioEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"SERVICE_ENDPOINT", "REQ_PER_SECOND", "VUS"} {
		t.Setenv(name, "")
	}
}

func TestInspect_DefaultsAsYAML(t *testing.T) {
	clearScenarioEnv(t)
	var stdout, stderr bytes.Buffer

	code := ExecuteArgs([]string{"inspect"}, &stdout, &stderr)
	require.Equal(t, ExitOK, code, stderr.String())

	var view inspectView
	require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &view))

	assert.Equal(t, "http://reference-service", string(view.Environment.ServiceEndpoint))
	assert.Equal(t, 1000, int(view.Environment.RequestsPerSecond))
	assert.Equal(t, 200, int(view.Environment.VirtualUsers))
	assert.Equal(t, "http://reference-service/hello", view.URL)
	assert.Equal(t, map[string]string{"test_name": "hello"}, view.Tags)

	assert.Equal(t, scenarioView{
		Name:            "hello",
		Executor:        "constant-arrival-rate",
		Rate:            1000,
		TimeUnit:        "1s",
		Duration:        "1m0s",
		PreAllocatedVUs: 200,
		MaxVUs:          200,
		GracefulStop:    "30s",
	}, view.Scenario)
	assert.Equal(t, []string{"avg", "min", "med", "max", "p(95)", "p(99)"}, view.SummaryTrendStats)

	require.Len(t, view.Thresholds, 4)
	assert.Equal(t, "http_reqs", view.Thresholds[1].Metric)
	assert.Equal(t, []string{"rate>900"}, view.Thresholds[1].Expressions)
}

func TestInspect_JSONFollowsEnvironment(t *testing.T) {
	clearScenarioEnv(t)
	t.Setenv("SERVICE_ENDPOINT", "http://example.test")
	t.Setenv("REQ_PER_SECOND", "50")
	t.Setenv("VUS", "7")
	var stdout, stderr bytes.Buffer

	code := ExecuteArgs([]string{"inspect", "--json"}, &stdout, &stderr)
	require.Equal(t, ExitOK, code, stderr.String())

	var view inspectView
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &view))

	assert.Equal(t, "http://example.test/hello", view.URL)
	assert.Equal(t, 50, view.Scenario.Rate)
	assert.Equal(t, 7, view.Scenario.PreAllocatedVUs)
	assert.Equal(t, []string{"rate>45"}, view.Thresholds[1].Expressions)
}

func TestInspect_InvalidEnvironment(t *testing.T) {
	clearScenarioEnv(t)
	t.Setenv("VUS", "-3")
	var stdout, stderr bytes.Buffer

	code := ExecuteArgs([]string{"inspect"}, &stdout, &stderr)

	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr.String(), "VUS")
	assert.Empty(t, stdout.String())
}

func TestInspect_EnvUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := ExecuteArgs([]string{"inspect", "--env"}, &stdout, &stderr)
	require.Equal(t, ExitOK, code, stderr.String())

	for _, name := range []string{"SERVICE_ENDPOINT", "REQ_PER_SECOND", "VUS"} {
		assert.Contains(t, stdout.String(), name)
	}
	assert.Contains(t, stdout.String(), "http://reference-service")
}
