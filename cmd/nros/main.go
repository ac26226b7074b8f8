// Package main implements the nros command line tool: bus lifecycle, topic
// and service plumbing, bag recording and the REST gateway.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"nros/internal/bus"
	"nros/internal/config"
)

// defaultRemotePort is the TCP port remote buses conventionally listen on.
const defaultRemotePort = 55556

var (
	// Global flags
	verbose     bool
	cfgPath     string
	busAddr     string
	remoteFlag  string
	stateDirArg string

	// Logger; replaced by PersistentPreRunE, nop so early paths stay safe
	logger = zap.NewNop()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "nros",
	Short: "nROS - a light pub/sub middleware for robots",
	Long: `nROS runs distributed robot software as a set of nodes that exchange
messages over a private D-Bus session bus: nodes publish on topics, subscribe
to them, and call each other's services.

Start the bus first (nros bus start), then launch nodes against it. The bus
can expose a TCP listener so demos on another machine can attach.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = buildLogger(verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger.Debug("command starting",
			zap.String("command", cmd.CommandPath()),
			zap.Strings("args", args))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Debug("command finished", zap.String("command", cmd.CommandPath()))
		_ = logger.Sync()
	},
}

// buildLogger builds the cmd-layer zap logger; --verbose raises it to debug.
func buildLogger(verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zcfg.Build()
}

// stateDir resolves the bus state directory, honoring --state-dir.
func stateDir() string {
	if stateDirArg != "" {
		return stateDirArg
	}
	return config.StateDir()
}

// parseRemote splits a host[:port] flag value, defaulting the port.
func parseRemote(value string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(value)
	if err != nil {
		// Bare host, no port
		return value, defaultRemotePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid remote port %q", portStr)
	}
	return host, port, nil
}

// dialBus connects per the global flags: --remote wins, then --bus, then the
// config file, then the local session bus.
func dialBus() (*bus.Conn, error) {
	if remoteFlag != "" {
		host, port, err := parseRemote(remoteFlag)
		if err != nil {
			return nil, err
		}
		logger.Debug("connecting to remote bus",
			zap.String("host", host), zap.Int("port", port))
		return bus.Remote(host, port)
	}
	if busAddr != "" {
		logger.Debug("connecting to bus", zap.String("address", busAddr))
		return bus.Connect(busAddr)
	}
	if cfgPath != "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		switch {
		case cfg.Bus.RemoteHost != "":
			logger.Debug("connecting to remote bus from config",
				zap.String("host", cfg.Bus.RemoteHost), zap.Int("port", cfg.Bus.RemotePort))
			return bus.Remote(cfg.Bus.RemoteHost, cfg.Bus.RemotePort)
		case cfg.Bus.Address != "":
			return bus.Connect(cfg.Bus.Address)
		}
	}
	logger.Debug("connecting to session bus", zap.String("state_dir", stateDir()))
	return bus.Session(stateDir())
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to a config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&busAddr, "bus", "", "explicit D-Bus address to connect to")
	rootCmd.PersistentFlags().StringVarP(&remoteFlag, "remote", "r", "", "remote bus as host[:port]")
	rootCmd.PersistentFlags().StringVar(&stateDirArg, "state-dir", "", "bus state directory (default /run/nros or ~/.nros)")

	rootCmd.AddCommand(busCmd)
	rootCmd.AddCommand(nodesCmd)
	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(pubCmd)
	rootCmd.AddCommand(echoCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(bagInfoCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(setupCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", zap.Error(err))
		_ = logger.Sync()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
