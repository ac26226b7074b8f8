// Package setup installs the nROS bus as a systemd service so it starts with
// the machine (system mode) or the user session (user mode).
package setup

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"nros/internal/logging"
)

// ServiceName is the systemd unit name of the nROS bus.
const ServiceName = "nros-bus"

// Options control where and how the unit is installed.
type Options struct {
	// User installs into the user session instead of the system.
	User bool

	// UnitDir overrides the unit directory (mainly for tests).
	UnitDir string

	// Exec is the nros binary path; defaults to the running executable.
	Exec string

	// TCPPort is forwarded to `nros bus start` when non-zero.
	TCPPort int
}

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=nROS message bus
After=network.target

[Service]
Type=oneshot
RemainAfterExit=yes
ExecStart={{.Exec}} bus start{{if gt .TCPPort 0}} --tcp-port {{.TCPPort}}{{end}}
ExecStop={{.Exec}} bus stop

[Install]
WantedBy={{if .User}}default.target{{else}}multi-user.target{{end}}
`))

// reloadSystemd is swapped out in tests.
var reloadSystemd = func(user bool) error {
	args := []string{"daemon-reload"}
	if user {
		args = append([]string{"--user"}, args...)
	}
	out, err := exec.Command("systemctl", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl daemon-reload: %v (%s)", err, out)
	}
	return nil
}

func (o Options) unitDir() (string, error) {
	if o.UnitDir != "" {
		return o.UnitDir, nil
	}
	if o.User {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "systemd", "user"), nil
	}
	return "/etc/systemd/system", nil
}

func (o Options) unitPath() (string, error) {
	dir, err := o.unitDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ServiceName+".service"), nil
}

// InstallService writes and registers the unit. Returns false when it is
// already installed, matching the original "already installed" report.
func InstallService(opts Options) (bool, error) {
	path, err := opts.unitPath()
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	if opts.Exec == "" {
		exe, err := os.Executable()
		if err != nil {
			return false, fmt.Errorf("locate nros binary: %w", err)
		}
		opts.Exec = exe
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	f, err := os.Create(path)
	if err != nil {
		return false, fmt.Errorf("write unit %s: %w", path, err)
	}
	if err := unitTemplate.Execute(f, opts); err != nil {
		f.Close()
		os.Remove(path)
		return false, fmt.Errorf("render unit: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, err
	}

	if err := reloadSystemd(opts.User); err != nil {
		logging.Get(logging.CategoryBus).Warn("unit installed but reload failed: %v", err)
	}
	logging.Bus("installed systemd unit %s", path)
	return true, nil
}

// RemoveService unregisters and deletes the unit. Returns false when it was
// not installed.
func RemoveService(opts Options) (bool, error) {
	path, err := opts.unitPath()
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, fmt.Errorf("remove unit %s: %w", path, err)
	}
	if err := reloadSystemd(opts.User); err != nil {
		logging.Get(logging.CategoryBus).Warn("unit removed but reload failed: %v", err)
	}
	logging.Bus("removed systemd unit %s", path)
	return true, nil
}
