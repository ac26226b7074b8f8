// Bus lifecycle commands: start, stop, status and config of the private
// nROS session bus daemon.
package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"nros/internal/bus"
)

var busTCPPort int

// busCmd groups the bus daemon lifecycle commands
var busCmd = &cobra.Command{
	Use:   "bus",
	Short: "Manage the private nROS session bus",
	Long: `Start, stop and inspect the private D-Bus daemon nROS nodes talk over.

The daemon's address and pid are kept in the state directory so later
commands and nodes find it. With --tcp-port the bus also accepts anonymous
remote clients over TCP.`,
}

var busStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the nROS bus daemon",
	RunE:  runBusStart,
}

var busStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the nROS bus daemon",
	RunE:  runBusStop,
}

var busStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the nROS bus is running",
	RunE:  runBusStatus,
}

var busConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Display the running bus settings",
	RunE:  runBusConfig,
}

func init() {
	busStartCmd.Flags().IntVar(&busTCPPort, "tcp-port", 0, "also listen on this TCP port for remote clients")

	busCmd.AddCommand(busStartCmd)
	busCmd.AddCommand(busStopCmd)
	busCmd.AddCommand(busStatusCmd)
	busCmd.AddCommand(busConfigCmd)
}

func daemonConfig() bus.DaemonConfig {
	return bus.DaemonConfig{StateDir: stateDir(), TCPPort: busTCPPort}
}

func runBusStart(cmd *cobra.Command, args []string) error {
	cfg := daemonConfig()
	if bus.DaemonRunning(cfg) {
		fmt.Println("nROS bus already started.")
	} else {
		fmt.Println("Starting nROS bus...")
		if _, err := bus.StartDaemon(cfg); err != nil {
			return err
		}
		printBusStatus(cfg)
	}

	fmt.Println("Configuration :")
	printBusConfig(cfg)
	return nil
}

func runBusStop(cmd *cobra.Command, args []string) error {
	cfg := daemonConfig()
	if !bus.DaemonRunning(cfg) {
		fmt.Println("nROS bus not started.")
		return nil
	}
	fmt.Println("Stopping nROS bus...")
	if err := bus.StopDaemon(cfg); err != nil && !errors.Is(err, bus.ErrNotRunning) {
		return err
	}
	printBusStatus(cfg)
	return nil
}

func runBusStatus(cmd *cobra.Command, args []string) error {
	printBusStatus(daemonConfig())
	return nil
}

func runBusConfig(cmd *cobra.Command, args []string) error {
	printBusConfig(daemonConfig())
	return nil
}

func printBusStatus(cfg bus.DaemonConfig) {
	state := "stopped"
	if bus.DaemonRunning(cfg) {
		state = "started"
	}
	fmt.Printf("nROS bus is %s.\n", state)
}

func printBusConfig(cfg bus.DaemonConfig) {
	info, err := bus.DaemonInfoFor(cfg)
	if err != nil {
		fmt.Println("nROS bus not started.")
		return
	}

	settings := info.Settings()
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("- %-25s : %s\n", k, settings[k])
	}
}
