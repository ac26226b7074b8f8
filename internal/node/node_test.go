package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nros/internal/bus"
	"nros/internal/config"
)

// recordingHandler records which lifecycle stages ran, in order.
type recordingHandler struct {
	BaseHandler
	stages       []string
	configureErr error
	prepareErr   error
}

func (h *recordingHandler) Configure(cfg *config.Config) error {
	h.stages = append(h.stages, "configure")
	return h.configureErr
}

func (h *recordingHandler) Prepare() error {
	h.stages = append(h.stages, "prepare")
	return h.prepareErr
}

func (h *recordingHandler) SetupBus(n *Node) error {
	h.stages = append(h.stages, "setup_bus")
	return nil
}

func (h *recordingHandler) Shutdown() error {
	h.stages = append(h.stages, "shutdown")
	return nil
}

func writeTestConfig(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.yaml")
	content := fmt.Sprintf("name: %q\nlogging:\n  enabled: false\n", name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultNameGeneration(t *testing.T) {
	n := New(&recordingHandler{}, Options{})
	assert.Equal(t, fmt.Sprintf("nros.recordinghandler-%d", os.Getpid()), n.Name())
}

func TestExplicitNameWins(t *testing.T) {
	n := New(&recordingHandler{}, Options{Name: "nros.clock"})
	assert.Equal(t, "nros.clock", n.Name())
}

func TestConfigNameUsedWhenOptionEmpty(t *testing.T) {
	h := &recordingHandler{}
	n := New(h, Options{ConfigPath: writeTestConfig(t, "nros.from-config")})
	n.dial = func(*Node) (*bus.Conn, error) { return nil, errors.New("no bus in tests") }

	err := n.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, "nros.from-config", n.Name())
}

func TestLifecycleStopsAtDialFailure(t *testing.T) {
	h := &recordingHandler{}
	n := New(h, Options{ConfigPath: writeTestConfig(t, "nros.test")})
	n.dial = func(*Node) (*bus.Conn, error) { return nil, errors.New("no bus in tests") }

	err := n.Run(context.Background())
	require.Error(t, err)
	// Configure and Prepare ran, but the bus never came up, so neither
	// SetupBus nor Shutdown may run.
	assert.Equal(t, []string{"configure", "prepare"}, h.stages)
}

func TestConfigureFailureAborts(t *testing.T) {
	h := &recordingHandler{configureErr: errors.New("bad hardware config")}
	n := New(h, Options{ConfigPath: writeTestConfig(t, "nros.test")})
	n.dial = func(*Node) (*bus.Conn, error) { t.Fatal("dial must not be reached"); return nil, nil }

	err := n.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad hardware config")
	assert.Equal(t, []string{"configure"}, h.stages)
}

func TestPrepareFailureAborts(t *testing.T) {
	h := &recordingHandler{prepareErr: errors.New("not ready")}
	n := New(h, Options{ConfigPath: writeTestConfig(t, "nros.test")})
	n.dial = func(*Node) (*bus.Conn, error) { t.Fatal("dial must not be reached"); return nil, nil }

	err := n.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"configure", "prepare"}, h.stages)
}

func TestMissingConfigFileFailsRun(t *testing.T) {
	n := New(&recordingHandler{}, Options{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")})
	assert.Error(t, n.Run(context.Background()))
}

func TestTerminateBeforeRunDoesNotDisarm(t *testing.T) {
	n := New(&recordingHandler{}, Options{})

	// Before the node runs there is nothing to stop
	assert.NotPanics(t, func() { n.Terminate() })
	n.Terminate()

	ctx, cancel := context.WithCancel(context.Background())
	n.stopMu.Lock()
	n.stop = cancel
	n.stopMu.Unlock()

	n.Terminate()
	select {
	case <-ctx.Done():
	default:
		t.Fatal("terminate on a running node must cancel its context")
	}
}
