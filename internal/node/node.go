// Package node implements the nROS node framework. A node is a process that
// handles one piece of the system (a hardware driver, an image processor, an
// AI task) and talks to the rest over the bus by publishing topics,
// subscribing to them, and answering service calls.
package node

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sync/errgroup"

	"nros/internal/bus"
	"nros/internal/config"
	"nros/internal/logging"
	"nros/internal/pubsub"
)

// Handler receives the node lifecycle callbacks. Embed BaseHandler to only
// implement the stages you care about.
//
// The stages run in this order:
//
//	Configure  - process the node configuration; create the objects doing
//	             the real job. Failing here aborts the start.
//	Prepare    - everything is instantiated; put it in its initial state.
//	SetupBus   - the node is connected and owns its name; register services,
//	             declare topics, subscribe.
//	Shutdown   - the node is terminating; stop workers and clean up while
//	             the connection is still alive.
type Handler interface {
	Configure(cfg *config.Config) error
	Prepare() error
	SetupBus(n *Node) error
	Shutdown() error
}

// Worker is an optional extra interface for handlers that need an active
// loop (periodic publishing, hardware polling). Work runs concurrently with
// the node and its return stops the node.
type Worker interface {
	Work(ctx context.Context, n *Node) error
}

// BaseHandler provides no-op lifecycle stages.
type BaseHandler struct{}

func (BaseHandler) Configure(*config.Config) error { return nil }
func (BaseHandler) Prepare() error                 { return nil }
func (BaseHandler) SetupBus(*Node) error           { return nil }
func (BaseHandler) Shutdown() error                { return nil }

// Options control how a node starts.
type Options struct {
	// Name of the node. Empty generates nros.<Type>-<pid>.
	Name string

	// ConfigPath points at the node configuration file (YAML or JSON).
	ConfigPath string

	// Bus selection; overrides the configuration when set.
	BusAddress string
	RemoteHost string
	RemotePort int

	// LogDir overrides the default log directory.
	LogDir string

	// StateDir overrides where the bus address file is looked up.
	StateDir string
}

// Node ties a Handler to a bus connection and runs its lifecycle.
type Node struct {
	name    string
	handler Handler
	opts    Options

	cfg  *config.Config
	conn *bus.Conn
	host *pubsub.ServiceHost
	pub  *pubsub.Publisher
	log  *logging.Logger

	dial func(*Node) (*bus.Conn, error)

	stopMu   sync.Mutex
	stopOnce sync.Once
	stop     context.CancelFunc
}

// New creates a node around the handler. The name is generated from the
// handler type when Options.Name is empty, as the original framework did.
func New(handler Handler, opts Options) *Node {
	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("nros.%s-%d", handlerType(handler), os.Getpid())
	}
	return &Node{
		name:    name,
		handler: handler,
		opts:    opts,
		dial:    dialBus,
	}
}

func handlerType(h Handler) string {
	t := reflect.TypeOf(h)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" {
		name = "node"
	}
	return strings.ToLower(name)
}

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Conn returns the node's bus connection. Valid from SetupBus on.
func (n *Node) Conn() *bus.Conn { return n.conn }

// Publisher returns the node's topic publisher. Valid from SetupBus on.
func (n *Node) Publisher() *pubsub.Publisher { return n.pub }

// Services returns the node's service host. Valid from SetupBus on.
func (n *Node) Services() *pubsub.ServiceHost { return n.host }

// Config returns the loaded node configuration. Valid from Configure on.
func (n *Node) Config() *config.Config { return n.cfg }

// Terminate triggers the node termination stage. Kill signals do the same.
// Calling it before the node runs is a no-op and does not disarm later calls.
func (n *Node) Terminate() {
	n.stopMu.Lock()
	stop := n.stop
	n.stopMu.Unlock()
	if stop == nil {
		return
	}
	n.stopOnce.Do(func() {
		if n.log != nil {
			n.log.Info("terminate called")
		}
		stop()
	})
}

// Run executes the node main line: configuration, bus connection, lifecycle
// callbacks, then blocks until the context is cancelled or SIGINT/SIGTERM
// arrives. Mirrors the original main() sequence including its log banners.
func (n *Node) Run(ctx context.Context) error {
	cfg, err := config.Load(n.opts.ConfigPath)
	if err != nil {
		return err
	}
	if n.opts.Name == "" && cfg.Name != "" {
		n.name = cfg.Name
	}
	n.cfg = cfg

	logCfg := logging.Config{
		Enabled:    cfg.Logging.Enabled,
		Level:      cfg.Logging.Level,
		Dir:        cfg.Logging.Dir,
		Categories: cfg.Logging.Categories,
	}
	if n.opts.LogDir != "" {
		logCfg.Dir = n.opts.LogDir
	}
	if err := logging.Initialize(logCfg); err != nil {
		return err
	}
	defer logging.CloseAll()

	n.log = logging.Get(logging.CategoryNode)
	n.log.Banner(" NODE STARTED ")
	n.log.Info("pid=%d", os.Getpid())
	n.log.Info("initializing node '%s'", n.name)

	if err := n.handler.Configure(cfg); err != nil {
		return n.die(fmt.Errorf("configure: %w", err))
	}
	if err := n.handler.Prepare(); err != nil {
		return n.die(fmt.Errorf("prepare: %w", err))
	}

	conn, err := n.dial(n)
	if err != nil {
		return n.die(err)
	}
	n.conn = conn
	defer conn.Close()

	n.log.Info("connecting to bus as %s", n.name)
	if _, err := conn.RequestName(n.name); err != nil {
		return n.die(err)
	}

	n.host = pubsub.NewServiceHost(n.name)
	n.pub = pubsub.NewPublisher(conn)
	if err := n.handler.SetupBus(n); err != nil {
		return n.die(fmt.Errorf("setup bus: %w", err))
	}
	if err := n.host.Export(conn); err != nil {
		return n.die(err)
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	n.stopMu.Lock()
	n.stop = stop
	n.stopMu.Unlock()

	g, workCtx := errgroup.WithContext(runCtx)
	if w, ok := n.handler.(Worker); ok {
		g.Go(func() error { return w.Work(workCtx, n) })
	}
	g.Go(func() error {
		<-workCtx.Done()
		return nil
	})

	n.log.Info("node running")
	err = g.Wait()
	if err != nil && runCtx.Err() == nil {
		n.log.Error("worker failed: %v", err)
	}

	if sderr := n.handler.Shutdown(); sderr != nil {
		n.log.Error("shutdown: %v", sderr)
		if err == nil {
			err = sderr
		}
	}

	n.log.Banner(" TERMINATED ")
	if err != nil && runCtx.Err() == nil {
		return err
	}
	return nil
}

// die logs the error, frames it with the ABORTED banner and returns it,
// matching the original abort semantics.
func (n *Node) die(err error) error {
	n.log.Error("%v", err)
	n.log.Banner(" ABORTED ")
	return err
}

// dialBus picks the bus per options first, configuration second: explicit
// address, then remote host/port, then the nROS session bus.
func dialBus(n *Node) (*bus.Conn, error) {
	addr := n.opts.BusAddress
	host, port := n.opts.RemoteHost, n.opts.RemotePort
	if addr == "" && host == "" && n.cfg != nil {
		addr = n.cfg.Bus.Address
		host, port = n.cfg.Bus.RemoteHost, n.cfg.Bus.RemotePort
	}
	switch {
	case addr != "":
		return bus.Connect(addr)
	case host != "":
		return bus.Remote(host, port)
	default:
		stateDir := n.opts.StateDir
		if stateDir == "" {
			stateDir = config.StateDir()
		}
		return bus.Session(stateDir)
	}
}
