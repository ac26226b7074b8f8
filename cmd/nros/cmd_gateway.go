// Gateway command: serve the REST front of the bus.
package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nros/internal/config"
	"nros/internal/gateway"
)

var gatewayListen string

// gatewayCmd runs the REST gateway in the foreground
var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Serve a REST gateway in front of the bus",
	Long: `Serves an HTTP API bridging to the bus: list nodes, introspect them,
publish on topics and call services. Useful for dashboards and scripts that
do not speak D-Bus.`,
	RunE: runGateway,
}

func init() {
	gatewayCmd.Flags().StringVar(&gatewayListen, "listen", "", "listen address (default from config)")
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if gatewayListen != "" {
		cfg.Gateway.Listen = gatewayListen
	}

	conn, err := dialBus()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("gateway listening on %s (ctrl+c to stop)\n", cfg.Gateway.Listen)
	return gateway.New(cfg.Gateway, gateway.NewBridge(conn)).Run(ctx)
}
