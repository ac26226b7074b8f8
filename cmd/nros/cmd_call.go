// Service call command: invoke a node's service from the terminal.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nros/internal/pubsub"
)

var callTimeout time.Duration

// callCmd calls a service on a node
var callCmd = &cobra.Command{
	Use:   "call <node> <service> [request]",
	Short: "Call a service on a node",
	Long: `Calls the named service and prints the reply. The request, when given,
is sent as raw bytes.

Example:
  nros call nros.clock-1234 now`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runCall,
}

func init() {
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 10*time.Second, "call timeout")
}

func runCall(cmd *cobra.Command, args []string) error {
	conn, err := dialBus()
	if err != nil {
		return err
	}
	defer conn.Close()

	var request []byte
	if len(args) == 3 {
		request = []byte(args[2])
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()

	reply, err := pubsub.NewCaller(conn).Call(ctx, args[0], args[1], request)
	if err != nil {
		return fmt.Errorf("call %s on %s: %w", args[1], args[0], err)
	}
	fmt.Println(string(reply))
	return nil
}
