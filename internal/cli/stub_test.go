package cli

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStubConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		args    []string
		want    func(t *testing.T, addr, internal string, latency time.Duration)
		wantErr bool
	}{
		{
			name: "defaults",
			want: func(t *testing.T, addr, internal string, latency time.Duration) {
				assert.Equal(t, ":8080", addr)
				assert.Empty(t, internal)
				assert.Zero(t, latency)
			},
		},
		{
			name: "environment",
			env:  map[string]string{"STUB_ADDR": ":9090", "STUB_LATENCY": "25ms"},
			want: func(t *testing.T, addr, internal string, latency time.Duration) {
				assert.Equal(t, ":9090", addr)
				assert.Equal(t, 25*time.Millisecond, latency)
			},
		},
		{
			name: "flags override environment",
			env:  map[string]string{"STUB_ADDR": ":9090", "STUB_LATENCY": "25ms"},
			args: []string{"--addr", "127.0.0.1:7000", "--internal-addr", "127.0.0.1:7001", "--latency", "5ms"},
			want: func(t *testing.T, addr, internal string, latency time.Duration) {
				assert.Equal(t, "127.0.0.1:7000", addr)
				assert.Equal(t, "127.0.0.1:7001", internal)
				assert.Equal(t, 5*time.Millisecond, latency)
			},
		},
		{
			name:    "negative latency",
			args:    []string{"--latency", "-1s"},
			wantErr: true,
		},
		{
			name:    "malformed environment",
			env:     map[string]string{"STUB_LATENCY": "soon"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, name := range []string{"STUB_ADDR", "STUB_INTERNAL_ADDR", "STUB_LATENCY"} {
				t.Setenv(name, "")
				if v, ok := tt.env[name]; ok {
					t.Setenv(name, v)
				} else {
					os.Unsetenv(name)
				}
			}

			cmd := newStubCmd()
			require.NoError(t, cmd.ParseFlags(tt.args))

			cfg, err := loadStubConfig(cmd)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.want(t, cfg.Addr, cfg.InternalAddr, cfg.Latency)
		})
	}
}

func TestStubCmd_BadAddress(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := ExecuteArgs([]string{"stub", "--addr", "not-an-address"}, &stdout, &stderr)

	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr.String(), "not-an-address")
}
