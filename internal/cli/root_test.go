package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteArgs_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := ExecuteArgs(nil, &stdout, &stderr)

	assert.Equal(t, ExitOK, code)
	assert.Contains(t, stdout.String(), "hello-load")
	assert.Contains(t, stdout.String(), "SERVICE_ENDPOINT")
	for _, sub := range []string{"run", "inspect", "stub"} {
		assert.Contains(t, stdout.String(), sub)
	}
}

func TestExecuteArgs_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := ExecuteArgs([]string{"--version"}, &stdout, &stderr)

	assert.Equal(t, ExitOK, code)
	assert.Contains(t, stdout.String(), version)
}

func TestExecuteArgs_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := ExecuteArgs([]string{"bogus"}, &stdout, &stderr)

	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr.String(), "unknown command")
}

func TestExecuteArgs_UnexpectedArgs(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := ExecuteArgs([]string{"inspect", "extra"}, &stdout, &stderr)

	assert.Equal(t, ExitError, code)
}

func TestExitError(t *testing.T) {
	cause := errors.New("boom")
	err := error(&exitError{code: ExitThresholdsFailed, err: cause})

	assert.Equal(t, "boom", err.Error())
	assert.ErrorIs(t, err, cause)

	var ee *exitError
	assert.True(t, errors.As(err, &ee))
	assert.Equal(t, ExitThresholdsFailed, ee.code)
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	t.Setenv("LOG_LEVEL", "")

	code := ExecuteArgs([]string{"stub", "--log-level", "loud", "--addr", "127.0.0.1:0"}, &stdout, &stderr)

	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr.String(), "loud")
}

func TestNewLogger_FileOutputFlushedOnCleanup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello-load.log")
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_OUTPUT", path)

	logger, cleanup, err := newLogger(NewRootCmd(&bytes.Buffer{}, &bytes.Buffer{}))
	require.NoError(t, err)
	logger.Info("starting test")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"starting test"`)
}
