// The clock node: publishes a tick every period and serves the current time.
package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"nros/internal/config"
	"nros/internal/node"
)

const tickTopic = "clock/tick"

var tickPeriod time.Duration

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run the clock node",
	RunE:  runNode,
}

func init() {
	nodeCmd.Flags().DurationVar(&tickPeriod, "period", time.Second, "tick period")
}

// tick is the payload published on clock/tick.
type tick struct {
	Seq int64     `json:"seq"`
	Now time.Time `json:"now"`
}

// clock is the node handler.
type clock struct {
	node.BaseHandler
	period time.Duration
	seq    int64
}

func (c *clock) Configure(cfg *config.Config) error {
	if c.period <= 0 {
		c.period = time.Second
	}
	return nil
}

func (c *clock) SetupBus(n *node.Node) error {
	n.Services().DeclareTopic(tickTopic)
	n.Services().Register("now", c.now)
	return nil
}

func (c *clock) Work(ctx context.Context, n *node.Node) error {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			c.seq++
			if _, err := n.Publisher().PublishJSON(tickTopic, tick{Seq: c.seq, Now: now}); err != nil {
				return err
			}
		}
	}
}

// now serves the current time, ignoring the request payload.
func (c *clock) now(ctx context.Context, request []byte) ([]byte, error) {
	return json.Marshal(map[string]time.Time{"now": time.Now()})
}

func runNode(cmd *cobra.Command, args []string) error {
	opts := node.Options{
		ConfigPath: configPath,
		BusAddress: busAddress,
		StateDir:   stateDirArg,
	}
	if remoteArg != "" {
		host, port, err := parseRemote(remoteArg)
		if err != nil {
			return err
		}
		opts.RemoteHost, opts.RemotePort = host, port
	}
	return node.New(&clock{period: tickPeriod}, opts).Run(cmd.Context())
}
