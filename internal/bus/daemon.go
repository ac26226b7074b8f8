package bus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/template"
	"time"

	"github.com/fsnotify/fsnotify"

	"nros/internal/logging"
)

// Errors reported by the daemon lifecycle operations.
var (
	ErrAlreadyRunning = errors.New("nROS bus already started")
	ErrNotRunning     = errors.New("nROS bus not started")
)

// State file names under the state directory.
const (
	addressFile = "bus.addr"
	pidFile     = "bus.pid"
	confFile    = "bus.conf"
)

// DaemonConfig describes how the private nROS bus daemon is started.
type DaemonConfig struct {
	// StateDir holds the address, pid and config files.
	StateDir string

	// TCPPort adds a TCP listener with anonymous auth for remote clients.
	// Zero keeps the bus local.
	TCPPort int
}

// DaemonInfo is what we know about a running (or stopped) bus daemon.
type DaemonInfo struct {
	Address  string
	PID      int
	TCPPort  int
	StateDir string
}

// Settings renders the daemon info the way `nros bus config` displays it.
func (i DaemonInfo) Settings() map[string]string {
	s := map[string]string{
		"address":   i.Address,
		"pid":       strconv.Itoa(i.PID),
		"state_dir": i.StateDir,
	}
	if i.TCPPort > 0 {
		s["tcp_port"] = strconv.Itoa(i.TCPPort)
	}
	return s
}

// busConfTemplate is the dbus-daemon configuration for a private nROS bus.
// The TCP listener, when enabled, accepts anonymous clients so that remote
// demos can attach without credentials.
var busConfTemplate = template.Must(template.New("busconf").Parse(`<!DOCTYPE busconfig PUBLIC "-//freedesktop//DTD D-BUS Bus Configuration 1.0//EN"
 "http://www.freedesktop.org/standards/dbus/1.0/busconfig.dtd">
<busconfig>
  <type>session</type>
  <keep_umask/>
  <listen>unix:tmpdir=/tmp</listen>
{{- if gt .TCPPort 0}}
  <listen>tcp:host=0.0.0.0,port={{.TCPPort}},family=ipv4</listen>
  <auth>EXTERNAL</auth>
  <auth>ANONYMOUS</auth>
  <allow_anonymous/>
{{- end}}
  <policy context="default">
    <allow send_destination="*" eavesdrop="true"/>
    <allow eavesdrop="true"/>
    <allow own="*"/>
  </policy>
</busconfig>
`))

// StartDaemon launches a private dbus-daemon for nROS and records its address
// and pid in the state directory. ErrAlreadyRunning is returned when a live
// daemon is already recorded there.
func StartDaemon(cfg DaemonConfig) (*DaemonInfo, error) {
	if cfg.StateDir == "" {
		return nil, fmt.Errorf("daemon state directory not set")
	}
	if DaemonRunning(cfg) {
		return nil, ErrAlreadyRunning
	}
	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	// A previous daemon may have died without cleanup
	clearState(cfg.StateDir)

	confPath := filepath.Join(cfg.StateDir, confFile)
	f, err := os.Create(confPath)
	if err != nil {
		return nil, fmt.Errorf("write bus config: %w", err)
	}
	if err := busConfTemplate.Execute(f, cfg); err != nil {
		f.Close()
		return nil, fmt.Errorf("render bus config: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	cmd := exec.Command("dbus-daemon",
		"--config-file="+confPath,
		"--print-address=1",
		"--print-pid=1",
		"--fork",
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("start dbus-daemon: %w", err)
	}

	address, pid, err := parseDaemonOutput(string(out))
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(filepath.Join(cfg.StateDir, pidFile), []byte(strconv.Itoa(pid)+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	// The address file is what clients wait on, write it last
	if err := os.WriteFile(filepath.Join(cfg.StateDir, addressFile), []byte(address+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write address file: %w", err)
	}

	info := &DaemonInfo{Address: address, PID: pid, TCPPort: cfg.TCPPort, StateDir: cfg.StateDir}
	logging.Bus("bus daemon started: pid=%d address=%s", pid, address)

	if err := probeBus(address); err != nil {
		return info, fmt.Errorf("bus daemon started but not reachable: %w", err)
	}
	return info, nil
}

// parseDaemonOutput extracts the address and pid lines that dbus-daemon
// prints with --print-address/--print-pid before forking.
func parseDaemonOutput(out string) (string, int, error) {
	var address string
	pid := 0
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if address == "" {
			address = line
			continue
		}
		n, err := strconv.Atoi(line)
		if err != nil {
			return "", 0, fmt.Errorf("unexpected dbus-daemon output line %q", line)
		}
		pid = n
	}
	if address == "" || pid == 0 {
		return "", 0, fmt.Errorf("dbus-daemon did not report address and pid (output %q)", out)
	}
	return address, pid, nil
}

// probeBus dials the freshly started bus until it answers or the grace
// period runs out.
func probeBus(address string) error {
	deadline := time.Now().Add(2 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := Connect(address)
		if err == nil {
			conn.Close()
			return nil
		}
		lastErr = err
		time.Sleep(50 * time.Millisecond)
	}
	return lastErr
}

// StopDaemon terminates the recorded bus daemon and removes the state files.
func StopDaemon(cfg DaemonConfig) error {
	pid, err := savedPID(cfg.StateDir)
	if err != nil || !pidAlive(pid) {
		clearState(cfg.StateDir)
		return ErrNotRunning
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("stop bus daemon pid %d: %w", pid, err)
	}
	// Give it a moment to exit before declaring the state clean
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) && pidAlive(pid) {
		time.Sleep(50 * time.Millisecond)
	}
	clearState(cfg.StateDir)
	logging.Bus("bus daemon stopped: pid=%d", pid)
	return nil
}

// DaemonRunning reports whether the recorded bus daemon is alive. A stale
// pid file counts as not running.
func DaemonRunning(cfg DaemonConfig) bool {
	pid, err := savedPID(cfg.StateDir)
	return err == nil && pidAlive(pid)
}

// DaemonInfoFor reads back the recorded daemon state.
func DaemonInfoFor(cfg DaemonConfig) (*DaemonInfo, error) {
	pid, err := savedPID(cfg.StateDir)
	if err != nil {
		return nil, ErrNotRunning
	}
	if !pidAlive(pid) {
		return nil, ErrNotRunning
	}
	addr, err := SavedAddress(cfg.StateDir)
	if err != nil {
		return nil, err
	}
	return &DaemonInfo{Address: addr, PID: pid, TCPPort: cfg.TCPPort, StateDir: cfg.StateDir}, nil
}

// SavedAddress returns the bus address recorded in the state directory.
func SavedAddress(stateDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, addressFile))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// WaitForAddress blocks until the bus address file appears in the state
// directory, typically because the bus daemon has just been started. It
// watches the directory with fsnotify and polls as a fallback for events
// lost while the watch was being established.
func WaitForAddress(ctx context.Context, stateDir string) (string, error) {
	if addr, err := SavedAddress(stateDir); err == nil && addr != "" {
		return addr, nil
	}

	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return "", err
	}
	defer watcher.Close()
	if err := watcher.Add(stateDir); err != nil {
		return "", fmt.Errorf("watch state dir: %w", err)
	}

	// The file may have appeared between the first check and the watch
	if addr, err := SavedAddress(stateDir); err == nil && addr != "" {
		return addr, nil
	}

	poll := time.NewTicker(500 * time.Millisecond)
	defer poll.Stop()

	target := filepath.Join(stateDir, addressFile)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return "", fmt.Errorf("watcher closed")
			}
			if ev.Name == target && (ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write)) {
				if addr, err := SavedAddress(stateDir); err == nil && addr != "" {
					return addr, nil
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return "", fmt.Errorf("watcher closed")
			}
			logging.Get(logging.CategoryBus).Warn("address watch error: %v", err)
		case <-poll.C:
			if addr, err := SavedAddress(stateDir); err == nil && addr != "" {
				return addr, nil
			}
		}
	}
}

func savedPID(stateDir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(stateDir, pidFile))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("corrupt pid file: %q", data)
	}
	return pid, nil
}

// pidAlive probes a pid with signal 0.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func clearState(stateDir string) {
	os.Remove(filepath.Join(stateDir, addressFile))
	os.Remove(filepath.Join(stateDir, pidFile))
	os.Remove(filepath.Join(stateDir, confFile))
}
