// Package main implements the nROS clock demo: a node publishing the wall
// clock on a topic and serving it on demand, plus a terminal viewer for it.
// It doubles as the reference for writing nodes and demos.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	nodeFlag    string
	remoteArg   string
	busAddress  string
	stateDirArg string
	configPath  string
)

var rootCmd = &cobra.Command{
	Use:   "nros-demo-clock",
	Short: "nROS clock demo node and viewer",
	Long: `The clock demo shows the nROS plumbing end to end: the node publishes a
tick on clock/tick once per second and serves the current time on the "now"
service; the viewer subscribes to the ticks and calls the service on request.

Start the node against a running bus, then watch it:
  nros-demo-clock node
  nros-demo-clock watch -n <node-name>`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&busAddress, "bus", "", "explicit D-Bus address to connect to")
	rootCmd.PersistentFlags().StringVarP(&remoteArg, "remote", "r", "", "remote bus as host[:port]")
	rootCmd.PersistentFlags().StringVar(&stateDirArg, "state-dir", "", "bus state directory")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "node config file")

	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
