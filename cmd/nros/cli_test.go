package main

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseRemote(t *testing.T) {
	tests := []struct {
		in      string
		host    string
		port    int
		wantErr bool
	}{
		{in: "robot.local", host: "robot.local", port: defaultRemotePort},
		{in: "10.0.0.5:55557", host: "10.0.0.5", port: 55557},
		{in: "robot.local:0", wantErr: true},
		{in: "robot.local:notaport", wantErr: true},
	}

	for _, tc := range tests {
		host, port, err := parseRemote(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.host, host)
		assert.Equal(t, tc.port, port)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{
		"bus", "nodes", "describe", "pub", "echo", "call",
		"record", "play", "bag-info", "gateway", "setup",
	}
	have := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, have[name], "command %q not registered", name)
	}
}

func TestBusSubcommands(t *testing.T) {
	sub := make(map[string]bool)
	for _, c := range busCmd.Commands() {
		sub[c.Name()] = true
	}
	for _, name := range []string{"start", "stop", "status", "config"} {
		assert.True(t, sub[name], "bus subcommand %q not registered", name)
	}
}

func TestBuildLoggerLevel(t *testing.T) {
	quiet, err := buildLogger(false)
	require.NoError(t, err)
	assert.False(t, quiet.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, quiet.Core().Enabled(zapcore.InfoLevel))

	loud, err := buildLogger(true)
	require.NoError(t, err)
	assert.True(t, loud.Core().Enabled(zapcore.DebugLevel))
}

func TestBusStatusStopped(t *testing.T) {
	stateDirArg = t.TempDir()
	t.Cleanup(func() { stateDirArg = "" })

	out := captureStdout(t, func() {
		require.NoError(t, runBusStatus(busStatusCmd, nil))
	})
	assert.Contains(t, out, "nROS bus is stopped.")
}

func TestBusConfigNotStarted(t *testing.T) {
	stateDirArg = t.TempDir()
	t.Cleanup(func() { stateDirArg = "" })

	out := captureStdout(t, func() {
		require.NoError(t, runBusConfig(busConfigCmd, nil))
	})
	assert.Contains(t, out, "nROS bus not started.")
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)

	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()
	require.NoError(t, w.Close())

	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	return buf.String()
}
