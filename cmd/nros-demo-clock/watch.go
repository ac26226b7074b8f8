// The clock viewer: a terminal demo subscribing to the ticks and calling the
// clock node's "now" service on request.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"nros/internal/config"
	"nros/internal/demo"
	"nros/internal/logging"
	"nros/internal/pubsub"
)

const watchRemotePort = 55556

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the clock node from the terminal",
	Long: `Subscribes to clock/tick and shows the ticks as they arrive. With -n,
only that node's ticks are shown and 'n' calls its "now" service.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&nodeFlag, "node", "n", "", "clock node to watch")
}

// clockWatch is the demo shown by the watch command.
type clockWatch struct {
	app    *demo.App
	caller *pubsub.Caller
	sub    *pubsub.Subscriber

	mu    sync.Mutex
	last  tick
	count int
}

func (w *clockWatch) Title() string { return "nROS clock" }

func (w *clockWatch) Setup(app *demo.App) error {
	w.app = app
	w.caller = pubsub.NewCaller(app.Conn())

	sub, err := pubsub.Subscribe(app.Conn(), pubsub.SubscribeOptions{
		Topic:  tickTopic,
		Sender: app.Node(),
	}, w.onTick)
	if err != nil {
		return err
	}
	w.sub = sub
	return nil
}

func (w *clockWatch) onTick(msg pubsub.Message) {
	var t tick
	if err := json.Unmarshal(msg.Payload, &t); err != nil {
		w.app.Errorf("bad tick payload: %v", err)
		return
	}
	w.mu.Lock()
	w.last = t
	w.count++
	w.mu.Unlock()
	w.app.Refresh()
}

func (w *clockWatch) View() string {
	w.mu.Lock()
	last, count := w.last, w.count
	w.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "ticks received : %d\n", count)
	if count > 0 {
		fmt.Fprintf(&b, "last tick      : #%d at %s\n", last.Seq, last.Now.Format(time.RFC3339))
	} else {
		b.WriteString("last tick      : (waiting)\n")
	}
	b.WriteString("\npress n to ask the node for the time")
	return b.String()
}

func (w *clockWatch) HandleKey(key string) {
	if key != "n" {
		return
	}
	if w.app.Node() == "" {
		w.app.Errorf("no node selected, restart with -n <node>")
		return
	}
	go w.callNow()
}

func (w *clockWatch) callNow() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := w.caller.Call(ctx, w.app.Node(), "now", nil)
	if err != nil {
		w.app.Errorf("now failed: %v", err)
		return
	}
	var r struct {
		Now time.Time `json:"now"`
	}
	if err := json.Unmarshal(reply, &r); err != nil {
		w.app.Errorf("bad reply: %v", err)
		return
	}
	w.app.Successf("node time: %s", r.Now.Format(time.RFC3339Nano))
}

func (w *clockWatch) Teardown() error {
	if w.sub != nil {
		return w.sub.Close()
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := logging.Initialize(logging.Config{
		Enabled:    cfg.Logging.Enabled,
		Level:      cfg.Logging.Level,
		Dir:        cfg.Logging.Dir,
		Categories: cfg.Logging.Categories,
	}); err != nil {
		return err
	}
	defer logging.CloseAll()

	opts := demo.Options{
		Node:       nodeFlag,
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
	return demo.Run(&clockWatch{}, opts)
}

// parseRemote splits a host[:port] flag value, defaulting the port.
func parseRemote(value string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(value)
	if err != nil {
		return value, watchRemotePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid remote port %q", portStr)
	}
	return host, port, nil
}
