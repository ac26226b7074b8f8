// Topic commands: publish a message and watch a topic from the terminal.
package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"nros/internal/pubsub"
)

var echoSender string

// pubCmd publishes one message on a topic
var pubCmd = &cobra.Command{
	Use:   "pub <topic> <payload>",
	Short: "Publish a message on a topic",
	Long: `Publishes the payload on the topic and exits. The payload is sent as
raw bytes; use JSON to interoperate with nodes that expect it.

Example:
  nros pub motors/cmd '{"left": 0.4, "right": 0.4}'`,
	Args: cobra.ExactArgs(2),
	RunE: runPub,
}

// echoCmd prints a topic's traffic until interrupted
var echoCmd = &cobra.Command{
	Use:   "echo <topic>",
	Short: "Print messages published on a topic",
	Args:  cobra.ExactArgs(1),
	RunE:  runEcho,
}

func init() {
	echoCmd.Flags().StringVar(&echoSender, "sender", "", "only show messages from this node")
}

func runPub(cmd *cobra.Command, args []string) error {
	conn, err := dialBus()
	if err != nil {
		return err
	}
	defer conn.Close()

	id, err := pubsub.NewPublisher(conn).Publish(args[0], []byte(args[1]))
	if err != nil {
		return fmt.Errorf("publish on %s: %w", args[0], err)
	}
	fmt.Printf("published %s on %s\n", id, args[0])
	return nil
}

func runEcho(cmd *cobra.Command, args []string) error {
	conn, err := dialBus()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub, err := pubsub.Subscribe(conn, pubsub.SubscribeOptions{
		Topic:  args[0],
		Sender: echoSender,
	}, func(msg pubsub.Message) {
		fmt.Printf("[%s] %s %s: %s\n",
			msg.At.Format(time.RFC3339Nano), msg.Sender, msg.Topic, msg.Payload)
	})
	if err != nil {
		return err
	}
	defer sub.Close()

	fmt.Printf("listening on %s (ctrl+c to stop)\n", args[0])
	<-ctx.Done()
	return nil
}
