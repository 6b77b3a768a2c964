package summary

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSummary = `{
  "runId": "6f1c2a9e-2b7c-4d0a-9a51-0c4a3c2f7e10",
  "name": "hello",
  "tags": {"test_name": "hello"},
  "executor": "constant-arrival-rate",
  "startTime": "2026-10-19T10:00:00Z",
  "endTime": "2026-10-19T10:01:00.2Z",
  "testRunDurationMs": 60200,
  "passed": false,
  "metrics": {
    "checks": {"type": "rate", "values": {"rate": 1, "passes": 1200, "fails": 0}, "thresholds": {"rate>0.99": true}},
    "http_reqs": {"type": "counter", "values": {"count": 600, "rate": 9.97}, "thresholds": {"rate>900": false}},
    "http_req_failed": {"type": "rate", "values": {"rate": 0, "passes": 0, "fails": 600}, "thresholds": {"rate<0.01": true}},
    "http_req_duration": {"type": "trend", "values": {"avg": 51.2, "p(95)": 53.1, "p(99)": 54.8}, "thresholds": {"p(99)<500": true}},
    "vus": {"type": "gauge", "values": {"value": 0, "min": 0, "max": 5}}
  },
  "checks": [
    {"name": "status is 200", "passes": 600, "fails": 0},
    {"name": "response body is correct", "passes": 600, "fails": 0}
  ]
}`

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate([]byte(validSummary)))
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		contains string
	}{
		{
			name:     "not JSON",
			doc:      `{"runId":`,
			contains: "invalid JSON",
		},
		{
			name:     "missing fields",
			doc:      `{"name": "hello"}`,
			contains: "missing properties",
		},
		{
			name: "unknown metric type",
			doc: `{"runId": "r", "name": "hello", "executor": "x", "startTime": "t", "endTime": "t",
				"testRunDurationMs": 1, "passed": true, "checks": [],
				"metrics": {"m": {"type": "histogram", "values": {}}}}`,
			contains: "/metrics/m/type",
		},
		{
			name: "negative check count",
			doc: `{"runId": "r", "name": "hello", "executor": "x", "startTime": "t", "endTime": "t",
				"testRunDurationMs": 1, "passed": true, "metrics": {},
				"checks": [{"name": "c", "passes": -1, "fails": 0}]}`,
			contains: "/checks/0/passes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestValidate_CollectsEveryViolation(t *testing.T) {
	doc := `{"runId": "", "name": "", "executor": "x", "startTime": "t", "endTime": "t",
		"testRunDurationMs": -1, "passed": true, "metrics": {}, "checks": []}`

	err := Validate([]byte(doc))

	var ve ValidationErrors
	require.True(t, errors.As(err, &ve))
	assert.GreaterOrEqual(t, len(ve), 3)
}

func TestExtract(t *testing.T) {
	data := []byte(validSummary)

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "gjson path", path: "metrics.http_reqs.values.count", want: "600"},
		{name: "jsonpath", path: "$.metrics.http_reqs.values.rate", want: "9.97"},
		{name: "percentile key", path: "$.metrics.http_req_duration.values['p(99)']", want: "54.8"},
		{name: "key with dot", path: `$.metrics.checks.thresholds["rate>0.99"]`, want: "true"},
		{name: "array index", path: "$.checks[1].name", want: "response body is correct"},
		{name: "boolean", path: "$.passed", want: "false"},
		{name: "tag", path: "tags.test_name", want: "hello"},
		{name: "missing", path: "$.metrics.nope", wantErr: true},
		{name: "empty path", path: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(data, tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_Null(t *testing.T) {
	got, err := Extract([]byte(`{"a": null}`), "$.a")
	require.NoError(t, err)
	assert.Equal(t, "null", got)

	_, err = Extract(nil, "$.a")
	assert.Error(t, err)
}

func TestExtractMultiple(t *testing.T) {
	got, err := ExtractMultiple([]byte(validSummary), []string{"name", "$.nope", "executor"})

	assert.ErrorContains(t, err, "path not found: $.nope")
	assert.Equal(t, map[string]string{"name": "hello", "executor": "constant-arrival-rate"}, got)

	_, err = ExtractMultiple([]byte(validSummary), nil)
	assert.Error(t, err)
}

func TestConvertToGjsonPath(t *testing.T) {
	tests := map[string]string{
		"$":                       "@this",
		"$.name":                  "name",
		"$.checks[0].name":        "checks.0.name",
		"$['metrics']['vus']":     "metrics.vus",
		"$.values['p(95)']":       "values.p(95)",
		"$.thresholds['a.b<1']":   `thresholds.a\.b\<1`,
		"metrics.http_reqs.count": "metrics.http_reqs.count",
	}

	for in, want := range tests {
		assert.Equal(t, want, convertToGjsonPath(in), in)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "summary.json")
	require.NoError(t, os.WriteFile(path, []byte(validSummary), 0o644))

	f, err := Load(path)
	require.NoError(t, err)

	assert.False(t, f.Passed())
	assert.Equal(t, []string{"http_reqs: rate>900"}, f.FailedThresholds())

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "failed to read summary")

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{}`), 0o644))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "not a valid summary")
}
