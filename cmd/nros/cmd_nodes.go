// Node discovery commands: list the nodes on the bus and show what a node
// publishes and serves.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nros/internal/pubsub"
)

var describeTimeout time.Duration

// nodesCmd lists the nodes currently on the bus
var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List the nodes connected to the bus",
	RunE:  runNodes,
}

// describeCmd asks a node for its topics and services
var describeCmd = &cobra.Command{
	Use:   "describe <node>",
	Short: "Show a node's topics and services",
	Args:  cobra.ExactArgs(1),
	RunE:  runDescribe,
}

func init() {
	describeCmd.Flags().DurationVar(&describeTimeout, "timeout", 5*time.Second, "introspection timeout")
}

func runNodes(cmd *cobra.Command, args []string) error {
	conn, err := dialBus()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	nodes, err := conn.Nodes(ctx)
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}
	if len(nodes) == 0 {
		fmt.Println("No nodes connected.")
		return nil
	}
	for _, n := range nodes {
		fmt.Println(n)
	}
	return nil
}

func runDescribe(cmd *cobra.Command, args []string) error {
	conn, err := dialBus()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), describeTimeout)
	defer cancel()

	desc, err := pubsub.Describe(ctx, conn, args[0])
	if err != nil {
		return fmt.Errorf("describe %s: %w", args[0], err)
	}

	fmt.Printf("node     : %s\n", desc.Name)
	fmt.Println("topics   :")
	for _, t := range desc.Topics {
		fmt.Printf("  - %s\n", t)
	}
	fmt.Println("services :")
	for _, s := range desc.Services {
		fmt.Printf("  - %s\n", s)
	}
	return nil
}
